package types

import "time"

// IPState is the persisted last-known public IP record.
type IPState struct {
	IP        string    `json:"ip"`
	Timestamp time.Time `json:"timestamp"`
}

// DNSUpdateResult represents the outcome of a single record upsert.
type DNSUpdateResult struct {
	OK           bool
	ErrorMessage string
}

// RegistrarErrorDetail carries everything the notifier needs to render
// a failed registrar call. StatusCode is 0 for connection-level failures.
type RegistrarErrorDetail struct {
	StatusCode    int
	Message       string
	CorrelationID string
	FieldErrors   map[string][]string
	Record        string
	AttemptedIP   string
}

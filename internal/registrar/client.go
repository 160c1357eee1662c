package registrar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"ipmon/internal/config"
	"ipmon/internal/types"
	"ipmon/internal/utils"
	"ipmon/internal/version"
)

// maxErrorBodySize bounds the error body read from the registrar
const maxErrorBodySize = 64 << 10

// ErrorNotifier receives registrar failure details. Notification is
// best-effort; errors from it are logged and discarded.
type ErrorNotifier interface {
	NotifyRegistrarError(detail types.RegistrarErrorDetail) error
}

// Client issues idempotent A-record upserts against the registrar's
// zone API. One client serves every maintained record.
type Client struct {
	config   *config.RegistrarConfig
	notifier ErrorNotifier
	logger   *zap.Logger
	client   *http.Client
}

// zoneUpdateRequest is the registrar's zone overwrite payload
type zoneUpdateRequest struct {
	Overwrite bool            `json:"overwrite"`
	Zone      []zoneRecordSet `json:"zone"`
}

// zoneRecordSet describes one record name within the zone payload
type zoneRecordSet struct {
	Name    string        `json:"name"`
	Records []recordValue `json:"records"`
	TTL     int           `json:"ttl"`
	Type    string        `json:"type"`
}

// recordValue is a single record content entry
type recordValue struct {
	Content string `json:"content"`
}

// errorResponse is the registrar's JSON error body
type errorResponse struct {
	Message       string              `json:"message"`
	CorrelationID string              `json:"correlation_id"`
	Errors        map[string][]string `json:"errors"`
}

// NewClient creates a new registrar client
func NewClient(cfg *config.RegistrarConfig, notifier ErrorNotifier, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		config:   cfg,
		notifier: notifier,
		logger:   logger,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

// UpsertRecord overwrites one A-record under the configured zone with
// the given IP. Success is exactly HTTP 200; every other outcome is a
// failure reported through the notifier and returned as a result
// value, never as an error, so one record's failure cannot block the
// next record's attempt.
func (c *Client) UpsertRecord(ctx context.Context, record, ip string) types.DNSUpdateResult {
	fqdn := utils.RecordFQDN(record, c.config.Domain)

	payload, err := json.Marshal(zoneUpdateRequest{
		Overwrite: true,
		Zone: []zoneRecordSet{
			{
				Name:    record,
				Records: []recordValue{{Content: ip}},
				TTL:     c.config.TTL,
				Type:    "A",
			},
		},
	})
	if err != nil {
		return c.fail(types.RegistrarErrorDetail{
			Message:     fmt.Sprintf("failed to marshal request: %v", err),
			Record:      fqdn,
			AttemptedIP: ip,
		})
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/zones/" + c.config.Domain
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, url, bytes.NewBuffer(payload))
	if err != nil {
		return c.fail(types.RegistrarErrorDetail{
			Message:     fmt.Sprintf("failed to create request: %v", err),
			Record:      fqdn,
			AttemptedIP: ip,
		})
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return c.fail(types.RegistrarErrorDetail{
			Message:     err.Error(),
			Record:      fqdn,
			AttemptedIP: ip,
		})
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.logger.Error("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	if resp.StatusCode == http.StatusOK {
		c.logger.Info("DNS record updated",
			zap.String("record", fqdn),
			zap.String("ip", ip))
		return types.DNSUpdateResult{OK: true}
	}

	detail := c.parseError(resp, fqdn, ip)
	return c.fail(detail)
}

// parseError extracts message, correlation ID and field errors from a
// failed response, defaulting to a generic HTTP-status message when the
// body is absent or not JSON
func (c *Client) parseError(resp *http.Response, fqdn, ip string) types.RegistrarErrorDetail {
	detail := types.RegistrarErrorDetail{
		StatusCode:  resp.StatusCode,
		Message:     fmt.Sprintf("HTTP error %d", resp.StatusCode),
		Record:      fqdn,
		AttemptedIP: ip,
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		return detail
	}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return detail
	}

	if errResp.Message != "" {
		detail.Message = errResp.Message
	}
	detail.CorrelationID = errResp.CorrelationID
	detail.FieldErrors = errResp.Errors
	return detail
}

// fail logs the failure, notifies best-effort and returns the result
func (c *Client) fail(detail types.RegistrarErrorDetail) types.DNSUpdateResult {
	fields := []zap.Field{
		zap.String("record", detail.Record),
		zap.String("ip", detail.AttemptedIP),
		zap.Int("status", detail.StatusCode),
		zap.String("message", detail.Message),
	}
	if detail.CorrelationID != "" {
		fields = append(fields, zap.String("correlation_id", detail.CorrelationID))
	}
	c.logger.Error("DNS record update failed", fields...)

	if c.notifier != nil {
		if err := c.notifier.NotifyRegistrarError(detail); err != nil {
			c.logger.Error("Failed to send registrar error notification", zap.Error(err))
		}
	}

	return types.DNSUpdateResult{
		OK:           false,
		ErrorMessage: detail.Message,
	}
}

package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ipmon/internal/config"
	"ipmon/internal/types"
	"ipmon/internal/utils"
)

// maxFieldLength is Discord's per-field value size limit
const maxFieldLength = 1024

// Notifier sends structured messages to a Discord webhook. Without a
// configured webhook URL every call is a logged no-op; notification is
// best-effort and never alters the monitor's control flow.
type Notifier struct {
	config    *config.NotifyConfig
	monitor   *config.MonitorConfig
	resolver  *config.ResolverConfig
	registrar *config.RegistrarConfig
	logger    *zap.Logger
	client    *http.Client
}

// DiscordMessage represents Discord message
type DiscordMessage struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds,omitempty"`
}

// DiscordEmbed represents Discord embed
type DiscordEmbed struct {
	Title  string         `json:"title"`
	Color  int            `json:"color"`
	Fields []DiscordField `json:"fields"`
	Footer struct {
		Text string `json:"text"`
	} `json:"footer"`
	Timestamp string `json:"timestamp"`
}

// DiscordField represents Discord field
type DiscordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// embedStyle is the colour/title pair for a registrar error class
type embedStyle struct {
	title string
	color int
}

// registrarErrorStyles maps status codes to embed styling. Status 0
// (connection-level failure) falls through to the default.
var registrarErrorStyles = map[int]embedStyle{
	http.StatusUnauthorized:        {title: "Registrar Authentication Error", color: 0xff0000},
	http.StatusUnprocessableEntity: {title: "Registrar Validation Error", color: 0xff9900},
	http.StatusInternalServerError: {title: "Registrar Server Error", color: 0xff0000},
}

var registrarErrorDefault = embedStyle{title: "Registrar API Error", color: 0xff0000}

// New creates a new notifier
func New(cfg *config.Config, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Notifier{
		config:    &cfg.Notify,
		monitor:   &cfg.Monitor,
		resolver:  &cfg.Resolver,
		registrar: &cfg.Registrar,
		logger:    logger,
		client: &http.Client{
			Timeout: cfg.Notify.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

// Enabled reports whether a webhook destination is configured
func (n *Notifier) Enabled() bool {
	return n.config.WebhookURL != ""
}

// NotifyStartup sends the monitor startup notification
func (n *Notifier) NotifyStartup(currentIP string) error {
	if !n.Enabled() {
		n.logger.Info("Webhook not configured, skipping startup notification")
		return nil
	}

	title := "IP Monitor Started"
	color := 0x0099ff
	if n.resolver.TestMode {
		title = "IP Monitor Started (TEST MODE)"
		color = 0xffaa00
	}

	fields := []DiscordField{
		{Name: "Current IP", Value: currentIP, Inline: true},
		{Name: "Check Interval", Value: n.monitor.Interval.String(), Inline: true},
	}

	if n.resolver.TestMode {
		fields = append(fields, DiscordField{
			Name:   "Test Mode",
			Value:  fmt.Sprintf("Active (IP: %s)", n.resolver.TestIP),
			Inline: true,
		})
	}

	if n.registrar.Dokploy.Enabled {
		fields = append(fields, DiscordField{
			Name:   "Dokploy Record",
			Value:  utils.RecordFQDN(n.registrar.Dokploy.RecordName, n.registrar.Domain),
			Inline: true,
		})
	}

	return n.send(n.embed(title, color, fields))
}

// NotifyIPChange sends an IP change notification. An empty oldIP means
// there was no prior state and is rendered as "N/A".
func (n *Notifier) NotifyIPChange(oldIP, newIP string) error {
	if !n.Enabled() {
		n.logger.Info("Webhook not configured, skipping IP change notification")
		return nil
	}

	if oldIP == "" {
		oldIP = "N/A"
	}

	fields := []DiscordField{
		{Name: "Previous IP", Value: oldIP, Inline: true},
		{Name: "New IP", Value: newIP, Inline: true},
		{Name: "Primary Record", Value: utils.RecordFQDN(n.registrar.RecordName, n.registrar.Domain), Inline: true},
	}

	if n.registrar.Dokploy.Enabled {
		fields = append(fields, DiscordField{
			Name:   "Dokploy Record",
			Value:  utils.RecordFQDN(n.registrar.Dokploy.RecordName, n.registrar.Domain),
			Inline: true,
		})
	}

	return n.send(n.embed("IP Change Detected", 0x00ff00, fields))
}

// NotifyRegistrarError sends a registrar failure notification
func (n *Notifier) NotifyRegistrarError(detail types.RegistrarErrorDetail) error {
	if !n.Enabled() {
		n.logger.Info("Webhook not configured, skipping registrar error notification")
		return nil
	}

	style, ok := registrarErrorStyles[detail.StatusCode]
	if !ok {
		style = registrarErrorDefault
	}

	status := "Connection Failed"
	if detail.StatusCode != 0 {
		status = strconv.Itoa(detail.StatusCode)
	}

	fields := []DiscordField{
		{Name: "Attempted IP", Value: detail.AttemptedIP, Inline: true},
		{Name: "Record", Value: detail.Record, Inline: true},
		{Name: "Status Code", Value: status, Inline: true},
		{Name: "Error Message", Value: detail.Message},
	}

	if detail.CorrelationID != "" {
		fields = append(fields, DiscordField{
			Name:   "Correlation ID",
			Value:  detail.CorrelationID,
			Inline: true,
		})
	}

	if details := formatFieldErrors(detail.FieldErrors); details != "" {
		fields = append(fields, DiscordField{
			Name:  "Error Details",
			Value: utils.Truncate(details, maxFieldLength),
		})
	}

	return n.send(n.embed(style.title, style.color, fields))
}

// embed builds a message embed with the common footer and timestamp
func (n *Notifier) embed(title string, color int, fields []DiscordField) DiscordEmbed {
	now := time.Now()

	fields = append(fields, DiscordField{
		Name:  "Timestamp",
		Value: now.Format("2006-01-02 15:04:05"),
	})

	e := DiscordEmbed{
		Title:     title,
		Color:     color,
		Fields:    fields,
		Timestamp: now.Format(time.RFC3339),
	}
	e.Footer.Text = footerText(n.monitor.InstanceID)
	return e
}

// footerText renders the embed footer with a short instance ID so
// multiple deployments sharing one webhook stay distinguishable
func footerText(instanceID string) string {
	if len(instanceID) > 8 {
		instanceID = instanceID[:8]
	}
	if instanceID == "" {
		return "IP Monitor"
	}
	return fmt.Sprintf("IP Monitor (%s)", instanceID)
}

// formatFieldErrors renders validation errors as field headers with
// bulleted messages, in stable field order
func formatFieldErrors(fieldErrors map[string][]string) string {
	if len(fieldErrors) == 0 {
		return ""
	}

	fields := make([]string, 0, len(fieldErrors))
	for field := range fieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var lines []string
	for _, field := range fields {
		lines = append(lines, fmt.Sprintf("**%s:**", field))
		for _, msg := range fieldErrors[field] {
			lines = append(lines, fmt.Sprintf("  • %s", msg))
		}
	}
	return strings.Join(lines, "\n")
}

// send posts a single embed to the webhook
func (n *Notifier) send(embed DiscordEmbed) error {
	payload, err := json.Marshal(DiscordMessage{
		Username: n.config.Username,
		Embeds:   []DiscordEmbed{embed},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	resp, err := n.client.Post(n.config.WebhookURL, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			n.logger.Error("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("discord api error: status code %d", resp.StatusCode)
	}

	return nil
}

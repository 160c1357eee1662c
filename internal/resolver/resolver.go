package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"ipmon/internal/config"
	"ipmon/internal/utils"
	"ipmon/internal/version"
)

// ErrAllSourcesFailed is returned when every configured source failed
// or returned an invalid address.
var ErrAllSourcesFailed = errors.New("all ip sources failed")

// maxResponseSize bounds the body read from an echo source. A valid
// JSON response is well under this; anything bigger is an error page.
const maxResponseSize = 512

// Resolver resolves the caller's public IPv4 address from an ordered
// list of echo sources with per-source failover.
type Resolver struct {
	config *config.ResolverConfig
	logger *zap.Logger
	client *http.Client
}

// New creates a new resolver
func New(cfg *config.ResolverConfig, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Resolver{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		},
	}
}

// Resolve returns the first syntactically valid IPv4 address reported
// by the configured sources, in order. Sources after the first success
// are never queried. In test mode the configured literal is returned
// without touching the network.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	if r.config.TestMode {
		r.logger.Info("Test mode enabled, returning fixed IP",
			zap.String("ip", r.config.TestIP))
		return r.config.TestIP, nil
	}

	var lastErr error
	for _, src := range r.config.Sources {
		ip, err := r.fetch(ctx, src)
		if err != nil {
			r.logger.Warn("IP source failed",
				zap.String("source", src.Name),
				zap.Error(err))
			lastErr = err
			continue
		}

		r.logger.Info("Resolved public IP",
			zap.String("source", src.Name),
			zap.String("ip", ip))
		return ip, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no sources configured")
	}
	return "", fmt.Errorf("%w: last error: %v", ErrAllSourcesFailed, lastErr)
}

// fetch queries a single source and validates its answer
func (r *Resolver) fetch(ctx context.Context, src config.SourceConfig) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, src.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, src.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", version.UserAgent())
	if src.JSONKey != "" {
		req.Header.Set("Accept", "application/json")
	} else {
		req.Header.Set("Accept", "text/plain")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			r.logger.Error("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("source returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	ip, err := parseBody(body, src.JSONKey)
	if err != nil {
		return "", err
	}

	if !utils.IsValidIPv4(ip) {
		return "", fmt.Errorf("invalid IPv4 address: %q", ip)
	}

	return ip, nil
}

// parseBody extracts the candidate address from a response body
func parseBody(body []byte, jsonKey string) (string, error) {
	if jsonKey == "" {
		return strings.TrimSpace(string(body)), nil
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	ip, ok := payload[jsonKey].(string)
	if !ok {
		return "", fmt.Errorf("response field %q missing or not a string", jsonKey)
	}
	return ip, nil
}

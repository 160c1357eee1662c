package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ipmon/internal/config"
	"ipmon/internal/types"
)

// failureCooldown is how long the loop waits after a failed tick
// before trying again. Kept distinct from the poll interval.
const failureCooldown = 60 * time.Second

// IPResolver resolves the current public IPv4 address
type IPResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// StateStore persists the last-known IP across restarts
type StateStore interface {
	Load() (string, time.Time)
	Save(ip string) error
}

// Notifier delivers best-effort webhook notifications
type Notifier interface {
	NotifyStartup(currentIP string) error
	NotifyIPChange(oldIP, newIP string) error
}

// RecordUpserter overwrites one DNS record with an IP
type RecordUpserter interface {
	UpsertRecord(ctx context.Context, record, ip string) types.DNSUpdateResult
}

// Monitor owns the timing, the comparison and the sequencing of the
// resolve/notify/update/persist cycle.
type Monitor struct {
	config    *config.Config
	resolver  IPResolver
	store     StateStore
	notifier  Notifier
	registrar RecordUpserter
	logger    *zap.Logger

	currentIP string
}

// New creates a new monitor
func New(cfg *config.Config, resolver IPResolver, store StateStore, notifier Notifier, registrar RecordUpserter, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Monitor{
		config:    cfg,
		resolver:  resolver,
		store:     store,
		notifier:  notifier,
		registrar: registrar,
		logger:    logger,
	}
}

// Run executes the monitor until ctx is cancelled. A failure of the
// very first resolution is fatal and returned; after that the loop
// survives every tick failure with a fixed cooldown.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Starting IP monitor",
		zap.Duration("interval", m.config.Monitor.Interval),
		zap.String("zone", m.config.Registrar.Domain))

	ip, err := m.resolver.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("initial ip resolution failed: %w", err)
	}
	m.currentIP = ip

	lastIP, observedAt := m.store.Load()
	if lastIP != "" {
		m.logger.Info("Loaded prior state",
			zap.String("ip", lastIP),
			zap.Time("observed_at", observedAt))
	}

	// Startup notification goes out regardless of whether anything changed
	if err := m.notifier.NotifyStartup(ip); err != nil {
		m.logger.Error("Failed to send startup notification", zap.Error(err))
	}

	if lastIP != ip {
		// No prior state counts as a change: records still need to
		// point at the current address.
		m.logger.Info("IP change detected",
			zap.String("old_ip", lastIP),
			zap.String("new_ip", ip))
		m.applyChange(ctx, lastIP, ip)
	} else {
		m.logger.Info("IP unchanged", zap.String("ip", ip))
	}

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Monitor stopped")
			return nil
		case <-time.After(m.config.Monitor.Interval):
		}

		if err := m.tick(ctx); err != nil {
			m.logger.Error("Monitor tick failed", zap.Error(err))
			select {
			case <-ctx.Done():
				m.logger.Info("Monitor stopped")
				return nil
			case <-time.After(failureCooldown):
			}
		}
	}
}

// tick resolves the current IP and applies the compare/act logic
// against the in-memory value
func (m *Monitor) tick(ctx context.Context) error {
	ip, err := m.resolver.Resolve(ctx)
	if err != nil {
		return err
	}

	if ip != m.currentIP {
		m.logger.Info("IP change detected",
			zap.String("old_ip", m.currentIP),
			zap.String("new_ip", ip))
		m.applyChange(ctx, m.currentIP, ip)
	} else {
		m.logger.Info("IP unchanged", zap.String("ip", ip))
	}

	return nil
}

// applyChange drives the side effects of a confirmed change. Each step
// is isolated: a failing notification or persist never blocks the DNS
// updates and vice versa.
func (m *Monitor) applyChange(ctx context.Context, oldIP, newIP string) {
	if err := m.notifier.NotifyIPChange(oldIP, newIP); err != nil {
		m.logger.Error("Failed to send IP change notification", zap.Error(err))
	}

	m.updateRecords(ctx, newIP)

	if err := m.store.Save(newIP); err != nil {
		m.logger.Error("Failed to persist IP state", zap.Error(err))
	}

	m.currentIP = newIP
}

// updateRecords upserts every maintained record independently
func (m *Monitor) updateRecords(ctx context.Context, ip string) {
	records := []string{m.config.Registrar.RecordName}
	if m.config.Registrar.Dokploy.Enabled {
		records = append(records, m.config.Registrar.Dokploy.RecordName)
	}

	for _, record := range records {
		res := m.registrar.UpsertRecord(ctx, record, ip)
		if !res.OK {
			m.logger.Error("DNS update failed",
				zap.String("record", record),
				zap.String("error", res.ErrorMessage))
		}
	}
}

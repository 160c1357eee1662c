package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ipmon/internal/config"
	"ipmon/internal/types"
)

type fakeResolver struct {
	mu    sync.Mutex
	ips   []string
	err   error
	calls int
}

func (f *fakeResolver) Resolve(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	ip := f.ips[0]
	if len(f.ips) > 1 {
		f.ips = f.ips[1:]
	}
	return ip, nil
}

func (f *fakeResolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStore struct {
	ip    string
	saved []string
}

func (f *fakeStore) Load() (string, time.Time) {
	if f.ip == "" {
		return "", time.Time{}
	}
	return f.ip, time.Now().Add(-time.Hour)
}

func (f *fakeStore) Save(ip string) error {
	f.saved = append(f.saved, ip)
	return nil
}

type fakeNotifier struct {
	startups []string
	changes  [][2]string
}

func (f *fakeNotifier) NotifyStartup(currentIP string) error {
	f.startups = append(f.startups, currentIP)
	return nil
}

func (f *fakeNotifier) NotifyIPChange(oldIP, newIP string) error {
	f.changes = append(f.changes, [2]string{oldIP, newIP})
	return nil
}

type fakeUpserter struct {
	result  types.DNSUpdateResult
	upserts [][2]string // record, ip
}

func (f *fakeUpserter) UpsertRecord(_ context.Context, record, ip string) types.DNSUpdateResult {
	f.upserts = append(f.upserts, [2]string{record, ip})
	return f.result
}

func testMonitorConfig(dokploy bool) *config.Config {
	return &config.Config{
		Monitor: config.MonitorConfig{
			Interval: time.Hour,
		},
		Registrar: config.RegistrarConfig{
			APIKey:     "k",
			Domain:     "example.com",
			RecordName: "@",
			Dokploy: config.DokployConfig{
				Enabled:    dokploy,
				RecordName: "dokploy",
			},
		},
	}
}

// runStartup executes Run with a pre-cancelled context so exactly the
// startup sequence executes before the loop exits cleanly
func runStartup(t *testing.T, m *Monitor) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, m.Run(ctx))
}

// TestStartupChangeDetected tests the full change path on startup
func TestStartupChangeDetected(t *testing.T) {
	r := &fakeResolver{ips: []string{"203.0.113.6"}}
	st := &fakeStore{ip: "203.0.113.5"}
	n := &fakeNotifier{}
	up := &fakeUpserter{result: types.DNSUpdateResult{OK: true}}

	m := New(testMonitorConfig(true), r, st, n, up, zaptest.NewLogger(t))
	runStartup(t, m)

	assert.Equal(t, []string{"203.0.113.6"}, n.startups)
	assert.Equal(t, [][2]string{{"203.0.113.5", "203.0.113.6"}}, n.changes)
	assert.Equal(t, [][2]string{
		{"@", "203.0.113.6"},
		{"dokploy", "203.0.113.6"},
	}, up.upserts)
	assert.Equal(t, []string{"203.0.113.6"}, st.saved)
}

// TestStartupUnchanged tests that matching state triggers nothing but
// the startup notification
func TestStartupUnchanged(t *testing.T) {
	r := &fakeResolver{ips: []string{"203.0.113.5"}}
	st := &fakeStore{ip: "203.0.113.5"}
	n := &fakeNotifier{}
	up := &fakeUpserter{result: types.DNSUpdateResult{OK: true}}

	m := New(testMonitorConfig(true), r, st, n, up, zaptest.NewLogger(t))
	runStartup(t, m)

	assert.Equal(t, []string{"203.0.113.5"}, n.startups)
	assert.Empty(t, n.changes)
	assert.Empty(t, up.upserts)
	assert.Empty(t, st.saved)
}

// TestStartupNoPriorState tests that a missing state file counts as a
// change with an empty old value
func TestStartupNoPriorState(t *testing.T) {
	r := &fakeResolver{ips: []string{"203.0.113.6"}}
	st := &fakeStore{}
	n := &fakeNotifier{}
	up := &fakeUpserter{result: types.DNSUpdateResult{OK: true}}

	m := New(testMonitorConfig(false), r, st, n, up, zaptest.NewLogger(t))
	runStartup(t, m)

	assert.Equal(t, [][2]string{{"", "203.0.113.6"}}, n.changes)
	assert.Equal(t, [][2]string{{"@", "203.0.113.6"}}, up.upserts)
	assert.Equal(t, []string{"203.0.113.6"}, st.saved)
}

// TestSecondaryRecordDisabled tests that only the primary record is
// maintained without the feature flag
func TestSecondaryRecordDisabled(t *testing.T) {
	r := &fakeResolver{ips: []string{"203.0.113.6"}}
	st := &fakeStore{ip: "203.0.113.5"}
	up := &fakeUpserter{result: types.DNSUpdateResult{OK: true}}

	m := New(testMonitorConfig(false), r, st, &fakeNotifier{}, up, zaptest.NewLogger(t))
	runStartup(t, m)

	assert.Equal(t, [][2]string{{"@", "203.0.113.6"}}, up.upserts)
}

// TestUpsertFailureDoesNotBlockOtherRecord tests per-record isolation
func TestUpsertFailureDoesNotBlockOtherRecord(t *testing.T) {
	r := &fakeResolver{ips: []string{"203.0.113.6"}}
	st := &fakeStore{ip: "203.0.113.5"}
	up := &fakeUpserter{result: types.DNSUpdateResult{OK: false, ErrorMessage: "boom"}}

	m := New(testMonitorConfig(true), r, st, &fakeNotifier{}, up, zaptest.NewLogger(t))
	runStartup(t, m)

	// Both records attempted despite failures, state still persisted
	assert.Len(t, up.upserts, 2)
	assert.Equal(t, []string{"203.0.113.6"}, st.saved)
}

// TestStartupResolutionFailureIsFatal tests the only fatal error path
func TestStartupResolutionFailureIsFatal(t *testing.T) {
	r := &fakeResolver{err: errors.New("all sources down")}

	m := New(testMonitorConfig(false), r, &fakeStore{}, &fakeNotifier{}, &fakeUpserter{}, zaptest.NewLogger(t))

	err := m.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial ip resolution failed")
}

// TestTickChange tests steady-state change detection against the
// in-memory value
func TestTickChange(t *testing.T) {
	r := &fakeResolver{ips: []string{"203.0.113.7"}}
	st := &fakeStore{}
	n := &fakeNotifier{}
	up := &fakeUpserter{result: types.DNSUpdateResult{OK: true}}

	m := New(testMonitorConfig(false), r, st, n, up, zaptest.NewLogger(t))
	m.currentIP = "203.0.113.6"

	require.NoError(t, m.tick(context.Background()))

	assert.Equal(t, "203.0.113.7", m.currentIP)
	assert.Equal(t, [][2]string{{"203.0.113.6", "203.0.113.7"}}, n.changes)
	assert.Equal(t, []string{"203.0.113.7"}, st.saved)
}

// TestTickUnchanged tests that a stable IP is a no-op tick
func TestTickUnchanged(t *testing.T) {
	r := &fakeResolver{ips: []string{"203.0.113.6"}}
	st := &fakeStore{}
	n := &fakeNotifier{}
	up := &fakeUpserter{result: types.DNSUpdateResult{OK: true}}

	m := New(testMonitorConfig(false), r, st, n, up, zaptest.NewLogger(t))
	m.currentIP = "203.0.113.6"

	require.NoError(t, m.tick(context.Background()))

	assert.Empty(t, n.changes)
	assert.Empty(t, up.upserts)
	assert.Empty(t, st.saved)
}

// TestTickResolutionFailure tests that a failing tick surfaces an error
// for the loop's recovery path instead of mutating anything
func TestTickResolutionFailure(t *testing.T) {
	r := &fakeResolver{err: errors.New("all sources down")}
	st := &fakeStore{}
	n := &fakeNotifier{}
	up := &fakeUpserter{}

	m := New(testMonitorConfig(false), r, st, n, up, zaptest.NewLogger(t))
	m.currentIP = "203.0.113.6"

	assert.Error(t, m.tick(context.Background()))
	assert.Equal(t, "203.0.113.6", m.currentIP)
	assert.Empty(t, n.changes)
	assert.Empty(t, st.saved)
}

// TestLoopSurvivesTickFailure tests that the loop keeps running after
// a failed tick and stops cleanly on cancellation
func TestLoopSurvivesTickFailure(t *testing.T) {
	r := &fakeResolver{ips: []string{"203.0.113.6"}}
	st := &fakeStore{ip: "203.0.113.6"}

	cfg := testMonitorConfig(false)
	cfg.Monitor.Interval = 5 * time.Millisecond

	m := New(cfg, r, st, &fakeNotifier{}, &fakeUpserter{result: types.DNSUpdateResult{OK: true}}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx)
	}()

	// Let the startup plus at least one tick happen, then fail the
	// resolver and let a tick hit the error path
	require.Eventually(t, func() bool {
		return r.callCount() >= 2
	}, time.Second, time.Millisecond)

	r.mu.Lock()
	r.err = errors.New("all sources down")
	r.mu.Unlock()

	require.Eventually(t, func() bool {
		return r.callCount() >= 3
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation is a clean exit, not an error")
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}
}

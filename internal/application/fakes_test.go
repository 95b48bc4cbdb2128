package application

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bnema/afk-farmer/internal/domain"
	"github.com/bnema/afk-farmer/internal/ports"
)

var errRemote = errors.New("HTTP 500: upstream down")

type apiCall struct {
	method     string
	credential string
	tenantID   string
	at         time.Time
}

type fakeAPI struct {
	mu             sync.Mutex
	tenants        map[string]string
	detectErr      error
	startFailures  int
	heartbeatErr   error
	detectPanicFor string
	clock          ports.Clock
	calls          []apiCall
}

var _ ports.RewardAPI = (*fakeAPI)(nil)

func newFakeAPI() *fakeAPI {
	return &fakeAPI{tenants: map[string]string{}, clock: ports.SystemClock{}}
}

func (f *fakeAPI) record(method, credential, tenantID string) {
	f.calls = append(f.calls, apiCall{method: method, credential: credential, tenantID: tenantID, at: f.clock.Now()})
}

func (f *fakeAPI) Stop(_ context.Context, credential, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop", credential, tenantID)
	return nil
}

func (f *fakeAPI) Start(_ context.Context, credential, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start", credential, tenantID)
	if f.startFailures > 0 {
		f.startFailures--
		return errRemote
	}
	return nil
}

func (f *fakeAPI) Heartbeat(_ context.Context, credential, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("heartbeat", credential, tenantID)
	return f.heartbeatErr
}

func (f *fakeAPI) DetectTenant(_ context.Context, credential string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("detect", credential, "")
	if f.detectPanicFor != "" && credential == f.detectPanicFor {
		panic("tenant lookup exploded")
	}
	if f.detectErr != nil {
		return "", f.detectErr
	}
	tenant, ok := f.tenants[credential]
	if !ok {
		return "", domain.ErrTenantNotFound
	}
	return tenant, nil
}

func (f *fakeAPI) setHeartbeatErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeatErr = err
}

func (f *fakeAPI) callsFor(method string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, call := range f.calls {
		if call.method == method {
			out = append(out, call)
		}
	}
	return out
}

func (f *fakeAPI) count(method string) int {
	return len(f.callsFor(method))
}

type memTokens struct {
	mu      sync.Mutex
	records map[domain.SessionKey]domain.TokenRecord
}

func newMemTokens(records ...domain.TokenRecord) *memTokens {
	m := &memTokens{records: map[domain.SessionKey]domain.TokenRecord{}}
	for _, record := range records {
		m.records[record.Key] = record
	}
	return m
}

func (m *memTokens) Upsert(_ context.Context, record domain.TokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.Key] = record
	return nil
}

func (m *memTokens) Delete(_ context.Context, key domain.SessionKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

func (m *memTokens) List(context.Context) ([]domain.TokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TokenRecord, 0, len(m.records))
	for _, record := range m.records {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AddedAt.Before(out[j].AddedAt) })
	return out, nil
}

func (m *memTokens) get(key domain.SessionKey) (domain.TokenRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[key]
	return record, ok
}

type memStats struct {
	mu   sync.Mutex
	rows map[domain.SessionKey]domain.LifetimeStats
	err  error
}

func newMemStats() *memStats {
	return &memStats{rows: map[domain.SessionKey]domain.LifetimeStats{}}
}

func (m *memStats) Get(_ context.Context, key domain.SessionKey) (domain.LifetimeStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[key]
	if !ok {
		return domain.LifetimeStats{}, domain.ErrStatsNotFound
	}
	return row, nil
}

func (m *memStats) Ensure(_ context.Context, key domain.SessionKey, firstSeen time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[key]; !ok {
		m.rows[key] = domain.LifetimeStats{Key: key, FirstSeen: firstSeen}
	}
	return nil
}

func (m *memStats) AddDelta(_ context.Context, key domain.SessionKey, delta domain.StatsDelta, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	row, ok := m.rows[key]
	if !ok {
		row = domain.LifetimeStats{Key: key, FirstSeen: now}
	}
	m.rows[key] = row.Add(delta)
	return nil
}

func (m *memStats) row(key domain.SessionKey) domain.LifetimeStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[key]
}

// stallingStats holds the first non-empty write until its context is done,
// the way the sqlite pool gives up on an interrupted statement.
type stallingStats struct {
	*memStats

	once    sync.Once
	stalled chan struct{}
	errMu   sync.Mutex
	errs    []error
}

func newStallingStats(inner *memStats) *stallingStats {
	return &stallingStats{memStats: inner, stalled: make(chan struct{})}
}

func (s *stallingStats) AddDelta(ctx context.Context, key domain.SessionKey, delta domain.StatsDelta, now time.Time) error {
	stall := false
	s.once.Do(func() { stall = true })
	if !stall {
		return s.memStats.AddDelta(ctx, key, delta, now)
	}

	close(s.stalled)
	<-ctx.Done()
	s.errMu.Lock()
	s.errs = append(s.errs, ctx.Err())
	s.errMu.Unlock()
	return ctx.Err()
}

func (s *stallingStats) failures() []error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return append([]error(nil), s.errs...)
}

// fakeClock stands still until advanced. Every After call registers a
// waiter that fires once the clock reaches its deadline.
type fakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time
}

var _ ports.Clock = (*fakeClock)(nil)

func newFakeClock(initial time.Time) *fakeClock {
	return &fakeClock{current: initial}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.current
		return channel
	}
	c.waiters = append(c.waiters, &fakeWaiter{deadline: c.current.Add(d), channel: channel})
	return channel
}

// Advance moves the clock forward and fires every waiter whose deadline
// has been reached, in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current

	var fire, remaining []*fakeWaiter
	for _, waiter := range c.waiters {
		if waiter.deadline.After(target) {
			remaining = append(remaining, waiter)
		} else {
			fire = append(fire, waiter)
		}
	}
	c.waiters = remaining
	c.mu.Unlock()

	sort.Slice(fire, func(i, j int) bool { return fire[i].deadline.Before(fire[j].deadline) })
	for _, waiter := range fire {
		waiter.channel <- target
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// step waits until at least n waiters are registered, advances to the
// earliest deadline and waits for the woken goroutines to block again.
func (c *fakeClock) step(t *testing.T, n int) {
	t.Helper()
	c.waitForTimers(t, n)

	c.mu.Lock()
	next := c.waiters[0].deadline
	for _, waiter := range c.waiters[1:] {
		if waiter.deadline.Before(next) {
			next = waiter.deadline
		}
	}
	d := next.Sub(c.current)
	c.mu.Unlock()

	c.Advance(d)
	c.waitForTimers(t, n)
}

func (c *fakeClock) waitForTimers(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return c.pending() >= n }, waitFor, time.Millisecond)
}

func fastTimings() Timings {
	return Timings{
		HeartbeatInterval: 5 * time.Millisecond,
		RestAfter:         time.Hour,
		RestDuration:      20 * time.Millisecond,
		StartSettle:       time.Millisecond,
		StartRetryStep:    10 * time.Millisecond,
		StartRetryMax:     40 * time.Millisecond,
		StatsInterval:     10 * time.Millisecond,
		RestartPause:      time.Millisecond,
		LogCapacity:       500,
	}
}

type harness struct {
	sup    *Supervisor
	api    *fakeAPI
	tokens *memTokens
	stats  *memStats
}

type harnessConfig struct {
	clock   ports.Clock
	records []domain.TokenRecord
	// wrapStats replaces the stats repository the supervisor sees; the
	// harness keeps reading totals from the wrapped memStats.
	wrapStats func(*memStats) ports.LifetimeStatsRepository
}

func newHarness(t *testing.T, api *fakeAPI, timings Timings, records ...domain.TokenRecord) *harness {
	t.Helper()
	return newHarnessWith(t, api, timings, harnessConfig{records: records})
}

func newHarnessWith(t *testing.T, api *fakeAPI, timings Timings, cfg harnessConfig) *harness {
	t.Helper()

	h := &harness{api: api, tokens: newMemTokens(cfg.records...), stats: newMemStats()}
	var stats ports.LifetimeStatsRepository = h.stats
	if cfg.wrapStats != nil {
		stats = cfg.wrapStats(h.stats)
	}
	h.sup = NewSupervisor(Config{
		API:     api,
		Tokens:  h.tokens,
		Stats:   stats,
		Clock:   cfg.clock,
		Timings: timings,
		Logger:  zerolog.Nop(),
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, h.sup.Shutdown(ctx))
	})
	return h
}

func (h *harness) snapshot(t *testing.T, ref string) Snapshot {
	t.Helper()
	snap, err := h.sup.Get(context.Background(), ref)
	require.NoError(t, err)
	return snap
}

func hasLog(snap Snapshot, severity domain.Severity, fragment string) bool {
	for _, entry := range snap.Logs {
		if entry.Severity == severity && strings.Contains(entry.Message, fragment) {
			return true
		}
	}
	return false
}

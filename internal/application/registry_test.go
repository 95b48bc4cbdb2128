package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/afk-farmer/internal/domain"
)

func TestRegistryCreateRejectsDuplicateKey(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	s := newSession("Bearer aaaaaaaaaaaaaaaa11112222", "t1", time.Now(), 10)

	require.NoError(t, reg.Create(s.Key, s))
	require.ErrorIs(t, reg.Create(s.Key, s), domain.ErrSessionExists)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a := newSession("Bearer xxxxxxxxxxxxxxxxxxxx-alpha-0001", "t1", time.Now(), 10)
	b := newSession("Bearer xxxxxxxxxxxxxxxxxxxx-bravo-0001", "t2", time.Now(), 10)
	require.NoError(t, reg.Create(a.Key, a))
	require.NoError(t, reg.Create(b.Key, b))

	key, err := reg.Resolve(string(a.Key))
	require.NoError(t, err)
	assert.Equal(t, a.Key, key)

	key, err = reg.Resolve("bravo-0001")
	require.NoError(t, err)
	assert.Equal(t, b.Key, key)

	_, err = reg.Resolve("-0001")
	require.ErrorIs(t, err, domain.ErrAmbiguousSession)

	_, err = reg.Resolve("nope")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)

	_, err = reg.Resolve("  ")
	require.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRegistryUpdateMissingKey(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	called := false
	assert.False(t, reg.Update("missing", func(*Session) { called = true }))
	assert.False(t, called)
}

func TestSessionLogRingDropsOldest(t *testing.T) {
	t.Parallel()

	s := newSession("Bearer aaaaaaaaaaaaaaaa11112222", "t1", time.Now(), 3)
	for i := 0; i < 5; i++ {
		s.appendLog(domain.LogEntry{Message: string(rune('a' + i))})
	}

	require.Len(t, s.logs, 3)
	assert.Equal(t, "c", s.logs[0].Message)
	assert.Equal(t, "e", s.logs[2].Message)
}

func TestSessionDrainStatsMovesBaseline(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newSession("Bearer aaaaaaaaaaaaaaaa11112222", "t1", start, 10)
	s.hbOK = 4
	s.hbFail = 1

	delta := s.drainStats(start.Add(90 * time.Second))
	assert.Equal(t, domain.StatsDelta{OK: 4, Failed: 1, UptimeSeconds: 90}, delta)

	s.hbOK = 6
	delta = s.drainStats(start.Add(120 * time.Second))
	assert.Equal(t, domain.StatsDelta{OK: 2, Failed: 0, UptimeSeconds: 30}, delta)

	delta = s.drainStats(start.Add(150 * time.Second))
	assert.True(t, delta.IsZero())
}

func TestSessionRequeueStatsCarriesDeltaIntoNextDrain(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newSession("Bearer aaaaaaaaaaaaaaaa11112222", "t1", start, 10)
	s.hbOK = 5
	s.hbFail = 2

	failed := s.drainStats(start.Add(60 * time.Second))
	s.requeueStats(failed)

	s.hbOK = 7
	delta := s.drainStats(start.Add(90 * time.Second))
	assert.Equal(t, domain.StatsDelta{OK: 7, Failed: 2, UptimeSeconds: 90}, delta)
}

func TestSessionRequeueStatsSurvivesCycleReset(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newSession("Bearer aaaaaaaaaaaaaaaa11112222", "t1", start, 10)
	s.hbOK = 120

	failed := s.drainStats(start.Add(time.Hour))
	s.resetCycle(start.Add(time.Hour + time.Minute))
	s.requeueStats(failed)

	s.hbOK = 2
	delta := s.drainStats(start.Add(time.Hour + 2*time.Minute))
	assert.Equal(t, domain.StatsDelta{OK: 122, UptimeSeconds: 3660}, delta)
}

func TestSnapshotHidesUptimeWhenNotRunning(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newSession("Bearer aaaaaaaaaaaaaaaa11112222", "t1", now, 10)
	s.farmStart = now.Add(-65 * time.Second)

	assert.Equal(t, "--:--:--", s.snapshot(now).Uptime)

	s.running = true
	snap := s.snapshot(now)
	assert.Equal(t, "00:01:05", snap.Uptime)
	assert.Equal(t, "11112222", snap.Tail)
}

package application

import (
	"context"
	"time"

	"github.com/bnema/afk-farmer/internal/domain"
)

// Session is the mutable record of one farming session. All fields except
// tasks are guarded by the owning Registry's lock; tasks is guarded by the
// Supervisor's lifecycle lock.
type Session struct {
	Key        domain.SessionKey
	Credential string
	TenantID   string
	CreatedAt  time.Time

	running       bool
	status        domain.Status
	lastError     string
	hbOK          int64
	hbFail        int64
	lastHeartbeat time.Time
	farmStart     time.Time

	flushOK   int64
	flushFail int64
	flushAt   time.Time

	logs   []domain.LogEntry
	logCap int

	tasks *taskSet
}

func newSession(credential, tenantID string, createdAt time.Time, logCap int) *Session {
	return &Session{
		Key:        domain.KeyFor(credential),
		Credential: credential,
		TenantID:   tenantID,
		CreatedAt:  createdAt,
		status:     domain.StatusIdle,
		flushAt:    createdAt,
		logCap:     logCap,
	}
}

func (s *Session) appendLog(entry domain.LogEntry) {
	s.logs = append(s.logs, entry)
	if s.logCap > 0 && len(s.logs) > s.logCap {
		drop := len(s.logs) - s.logCap
		s.logs = append(s.logs[:0:0], s.logs[drop:]...)
	}
}

// resetCycle zeroes the per-cycle counters and the stats baseline.
func (s *Session) resetCycle(now time.Time) {
	s.hbOK = 0
	s.hbFail = 0
	s.farmStart = time.Time{}
	s.flushOK = 0
	s.flushFail = 0
	s.flushAt = now
}

// drainStats returns the counters accumulated since the previous drain and
// moves the baseline forward.
func (s *Session) drainStats(now time.Time) domain.StatsDelta {
	delta := domain.StatsDelta{
		OK:     s.hbOK - s.flushOK,
		Failed: s.hbFail - s.flushFail,
	}
	if !s.flushAt.IsZero() && now.After(s.flushAt) {
		delta.UptimeSeconds = int64(now.Sub(s.flushAt) / time.Second)
	}

	s.flushOK = s.hbOK
	s.flushFail = s.hbFail
	s.flushAt = now

	return delta
}

// requeueStats returns a drained delta that could not be written to the
// pending counters so the next drain carries it again.
func (s *Session) requeueStats(delta domain.StatsDelta) {
	s.flushOK -= delta.OK
	s.flushFail -= delta.Failed
	s.flushAt = s.flushAt.Add(-time.Duration(delta.UptimeSeconds) * time.Second)
}

func (s *Session) snapshot(now time.Time) Snapshot {
	logs := make([]domain.LogEntry, len(s.logs))
	copy(logs, s.logs)

	farmStart := s.farmStart
	if !s.running {
		farmStart = time.Time{}
	}

	return Snapshot{
		Key:              s.Key,
		Tail:             domain.Tail(s.Credential),
		TenantID:         s.TenantID,
		Running:          s.running,
		Status:           s.status,
		Uptime:           domain.FormatUptime(farmStart, now),
		HeartbeatsOK:     s.hbOK,
		HeartbeatsFailed: s.hbFail,
		SuccessRate:      domain.SuccessRate(s.hbOK, s.hbFail),
		LastError:        s.lastError,
		LastHeartbeat:    s.lastHeartbeat,
		AddedAt:          s.CreatedAt,
		Logs:             logs,
	}
}

type taskSet struct {
	cancel context.CancelFunc
	worker chan struct{}
	stats  chan struct{}
}

func newTaskSet(cancel context.CancelFunc) *taskSet {
	return &taskSet{
		cancel: cancel,
		worker: make(chan struct{}),
		stats:  make(chan struct{}),
	}
}

// stop cancels both tasks and waits until they have returned.
func (t *taskSet) stop() {
	if t == nil {
		return
	}
	t.cancel()
	<-t.worker
	<-t.stats
}

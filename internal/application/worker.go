package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bnema/afk-farmer/internal/domain"
	"github.com/bnema/afk-farmer/internal/observability"
	"github.com/bnema/afk-farmer/internal/ports"
)

// worker drives one session through start, farm and rest cycles until its
// context is cancelled or the session stops running.
type worker struct {
	key      domain.SessionKey
	registry *Registry
	api      ports.RewardAPI
	mux      *LogMux
	clock    ports.Clock
	timings  Timings
	stats    *statsAggregator
	logger   zerolog.Logger
}

func (w *worker) run(ctx context.Context) {
	for cycle := 1; ; cycle++ {
		credential, tenantID, ok := w.beginCycle()
		if !ok {
			return
		}
		if !w.start(ctx, credential, tenantID) {
			return
		}
		farmStart, ok := w.markFarming(cycle)
		if !ok {
			return
		}
		if !w.farm(ctx, credential, tenantID, farmStart) {
			return
		}
		if !w.rest(ctx, cycle) {
			return
		}
	}
}

func (w *worker) isRunning() bool {
	var running bool
	found := w.registry.View(w.key, func(s *Session) { running = s.running })
	return found && running
}

// update applies fn only while the session is registered and running, then
// emits the event fn recorded once the registry lock is released.
func (w *worker) update(fn func(*Session) LogEvent) bool {
	applied := false
	var ev LogEvent
	w.registry.Update(w.key, func(s *Session) {
		if !s.running {
			return
		}
		ev = fn(s)
		applied = true
	})
	w.mux.Emit(ev)
	return applied
}

func (w *worker) beginCycle() (string, string, bool) {
	var credential, tenantID string
	ok := w.update(func(s *Session) LogEvent {
		s.status = domain.StatusStarting
		credential = s.Credential
		tenantID = s.TenantID
		return LogEvent{}
	})
	return credential, tenantID, ok
}

func (w *worker) start(ctx context.Context, credential, tenantID string) bool {
	backoff := w.timings.startBackoff()

	for attempt := 0; ; {
		if !w.isRunning() {
			return false
		}
		w.ignoreOutcome("stop", w.api.Stop(ctx, credential, tenantID))
		if !sleep(ctx, w.clock, w.timings.StartSettle) || !w.isRunning() {
			return false
		}

		err := w.api.Start(ctx, credential, tenantID)
		if ctx.Err() != nil {
			return false
		}
		observability.RecordStartAttempt(err == nil)
		if err == nil {
			return true
		}

		attempt++
		message := err.Error()
		if w.timings.StartMaxAttempts > 0 && attempt >= w.timings.StartMaxAttempts {
			w.abandon(attempt, message)
			return false
		}

		wait := backoff.Delay(attempt)
		if !w.update(func(s *Session) LogEvent {
			s.lastError = message
			return w.mux.Record(s, domain.SeverityWarn, fmt.Sprintf("start attempt %d failed: %s, retrying in %s", attempt, message, wait))
		}) {
			return false
		}
		if !sleep(ctx, w.clock, wait) {
			return false
		}
	}
}

func (w *worker) abandon(attempts int, message string) {
	w.update(func(s *Session) LogEvent {
		s.running = false
		s.status = domain.StatusStopped
		s.lastError = message
		return w.mux.Record(s, domain.SeverityError, fmt.Sprintf("start abandoned after %d attempts: %s", attempts, message))
	})
}

func (w *worker) markFarming(cycle int) (time.Time, bool) {
	now := w.clock.Now()
	ok := w.update(func(s *Session) LogEvent {
		s.status = domain.StatusFarming
		s.lastError = ""
		s.farmStart = now
		return w.mux.Record(s, domain.SeveritySuccess, fmt.Sprintf("farming cycle %d", cycle))
	})
	return now, ok
}

// farm sends heartbeats until the rest threshold is reached. It returns
// false when the session should exit.
func (w *worker) farm(ctx context.Context, credential, tenantID string, farmStart time.Time) bool {
	sent := 0
	for {
		if !sleep(ctx, w.clock, w.timings.HeartbeatInterval) || !w.isRunning() {
			return false
		}

		sent++
		err := w.api.Heartbeat(ctx, credential, tenantID)
		if ctx.Err() != nil {
			return false
		}
		observability.RecordHeartbeat(err == nil)

		now := w.clock.Now()
		if !w.update(func(s *Session) LogEvent {
			if err != nil {
				s.hbFail++
				s.lastError = err.Error()
				return w.mux.Record(s, domain.SeverityError, fmt.Sprintf("heartbeat #%d failed: %s", sent, err))
			}
			s.hbOK++
			s.lastHeartbeat = now
			s.status = domain.StatusFarming
			s.lastError = ""
			return w.mux.Record(s, domain.SeveritySuccess, fmt.Sprintf("heartbeat #%d ok (total %d)", sent, s.hbOK))
		}) {
			return false
		}

		if now.Sub(farmStart) >= w.timings.RestAfter {
			return true
		}
	}
}

func (w *worker) rest(ctx context.Context, cycle int) bool {
	if !w.update(func(s *Session) LogEvent {
		s.status = domain.StatusResting
		s.lastError = ""
		return w.mux.Record(s, domain.SeverityInfo, fmt.Sprintf("cycle %d done, resting %s", cycle, w.timings.RestDuration))
	}) {
		return false
	}

	w.stats.flush(ctx, w.key)

	if !sleep(ctx, w.clock, w.timings.RestDuration) {
		return false
	}

	now := w.clock.Now()
	return w.update(func(s *Session) LogEvent {
		s.resetCycle(now)
		return w.mux.Record(s, domain.SeverityInfo, fmt.Sprintf("starting cycle %d", cycle+1))
	})
}

func (w *worker) ignoreOutcome(action string, err error) {
	if err != nil {
		w.logger.Debug().Err(err).Str("session", w.key.Tail()).Str("action", action).Msg("best-effort call failed")
	}
}

package application

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bnema/afk-farmer/internal/domain"
	"github.com/bnema/afk-farmer/internal/observability"
	"github.com/bnema/afk-farmer/internal/ports"
)

type statsAggregator struct {
	registry     *Registry
	repo         ports.LifetimeStatsRepository
	mux          *LogMux
	clock        ports.Clock
	interval     time.Duration
	writeTimeout time.Duration
	logger       zerolog.Logger
}

func (a *statsAggregator) run(ctx context.Context, key domain.SessionKey) {
	for {
		if !sleep(ctx, a.clock, a.interval) {
			return
		}

		var running bool
		if !a.registry.View(key, func(s *Session) { running = s.running }) {
			return
		}
		if !running {
			continue
		}
		a.flush(ctx, key)
	}
}

// flush drains the pending delta of a registered session. A delta that
// cannot be written is put back so a later drain retries it.
func (a *statsAggregator) flush(ctx context.Context, key domain.SessionKey) {
	now := a.clock.Now()
	var delta domain.StatsDelta
	if !a.registry.Update(key, func(s *Session) { delta = s.drainStats(now) }) {
		return
	}
	err := a.write(ctx, key, delta, now)
	if err == nil {
		return
	}

	var failed LogEvent
	a.registry.Update(key, func(s *Session) {
		s.requeueStats(delta)
		failed = a.mux.Record(s, domain.SeverityError, "stats write failed: "+err.Error())
	})
	a.mux.Emit(failed)
}

// flushDetached drains a session that is no longer in the registry.
func (a *statsAggregator) flushDetached(ctx context.Context, s *Session) {
	now := a.clock.Now()
	var delta domain.StatsDelta
	a.registry.locked(func() { delta = s.drainStats(now) })
	if err := a.write(ctx, s.Key, delta, now); err != nil {
		a.logger.Error().Err(err).Str("session", s.Key.Tail()).
			Int64("hb_ok", delta.OK).Int64("hb_fail", delta.Failed).
			Msg("stats write failed")
	}
}

// write outlives the cancellation of ctx and is bounded by writeTimeout.
func (a *statsAggregator) write(ctx context.Context, key domain.SessionKey, delta domain.StatsDelta, now time.Time) error {
	if delta.IsZero() {
		return nil
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.writeTimeout)
	defer cancel()
	if err := a.repo.AddDelta(writeCtx, key, delta, now); err != nil {
		observability.RecordStatsFlushError()
		return err
	}
	return nil
}

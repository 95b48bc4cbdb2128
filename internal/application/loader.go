package application

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/bnema/afk-farmer/internal/domain"
	"github.com/bnema/afk-farmer/internal/observability"
)

var errAlreadyLoaded = errors.New("session already registered")

// LoadAll recovers every persisted session, staggering the starts so the
// remote API is not hit by all of them at once. It returns the number of
// sessions started.
func (s *Supervisor) LoadAll(ctx context.Context) (int, error) {
	records, err := s.tokens.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tokens: %w", err)
	}
	if len(records) == 0 {
		s.logger.Info().Msg("no stored sessions")
		return 0, nil
	}
	s.logger.Info().Int("count", len(records)).Dur("stagger", s.timings.StaggerStep).Msg("loading stored sessions")

	var loaded atomic.Int64
	var wg conc.WaitGroup
	for i, record := range records {
		delay := time.Duration(i) * s.timings.StaggerStep
		wg.Go(func() {
			if !sleep(ctx, s.clock, delay) {
				return
			}
			err := s.recoverSession(ctx, record)
			switch {
			case err == nil:
				loaded.Add(1)
			case errors.Is(err, errAlreadyLoaded):
			default:
				s.logger.Error().Err(err).Str("session", record.Key.Tail()).Msg("recover session failed")
			}
		})
	}
	if recovered := wg.WaitAndRecover(); recovered != nil {
		s.logger.Error().Str("panic", recovered.String()).Msg("session recovery panicked")
	}
	observability.SetSessions(s.registry.Len())

	n := int(loaded.Load())
	s.logger.Info().Int("loaded", n).Int("stored", len(records)).Msg("stored sessions loaded")
	return n, nil
}

func (s *Supervisor) recoverSession(ctx context.Context, record domain.TokenRecord) error {
	credential, err := domain.NormalizeCredential(record.Credential)
	if err != nil {
		return fmt.Errorf("stored credential: %w", err)
	}
	key := domain.KeyFor(credential)
	if s.registry.Has(key) {
		return errAlreadyLoaded
	}

	tenantID := record.TenantID
	detected, err := s.api.DetectTenant(ctx, credential)
	switch {
	case err == nil:
		tenantID = detected
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		s.logger.Warn().Err(err).Str("session", key.Tail()).Str("tenant", tenantID).Msg("tenant detection failed, using stored tenant")
	}
	if tenantID == "" {
		return domain.ErrTenantNotFound
	}

	addedAt := record.AddedAt
	if addedAt.IsZero() {
		addedAt = s.clock.Now()
	}
	session := newSession(credential, tenantID, addedAt, s.timings.LogCapacity)
	if err := s.registry.Create(key, session); err != nil {
		return errAlreadyLoaded
	}
	var loaded LogEvent
	s.registry.Update(key, func(rec *Session) {
		loaded = s.mux.Record(rec, domain.SeverityInfo, "loaded from storage")
	})
	s.mux.Emit(loaded)

	if tenantID != record.TenantID {
		record.TenantID = tenantID
		if err := s.tokens.Upsert(ctx, record); err != nil {
			s.logger.Warn().Err(err).Str("session", key.Tail()).Msg("update stored tenant failed")
		}
	}

	return s.StartSession(key)
}

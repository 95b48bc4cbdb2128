package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bnema/afk-farmer/internal/domain"
	"github.com/bnema/afk-farmer/internal/observability"
	"github.com/bnema/afk-farmer/internal/ports"
)

const remoteStopTimeout = 30 * time.Second

type Config struct {
	API     ports.RewardAPI
	Tokens  ports.TokenRepository
	Stats   ports.LifetimeStatsRepository
	LogMux  *LogMux
	Clock   ports.Clock
	Timings Timings
	Logger  zerolog.Logger
}

// Supervisor owns the session registry and the goroutines that farm each
// session.
type Supervisor struct {
	registry *Registry
	api      ports.RewardAPI
	tokens   ports.TokenRepository
	stats    ports.LifetimeStatsRepository
	mux      *LogMux
	clock    ports.Clock
	timings  Timings
	logger   zerolog.Logger
	agg      *statsAggregator

	// lifecycle serializes task spawning and teardown.
	lifecycle sync.Mutex
	baseCtx   context.Context
	cancelAll context.CancelFunc
}

func NewSupervisor(cfg Config) *Supervisor {
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}
	if cfg.LogMux == nil {
		cfg.LogMux = NewLogMux(LogMuxConfig{Logger: cfg.Logger, Clock: cfg.Clock})
	}
	timings := cfg.Timings.withDefaults()
	registry := NewRegistry()
	baseCtx, cancel := context.WithCancel(context.Background())

	return &Supervisor{
		registry: registry,
		api:      cfg.API,
		tokens:   cfg.Tokens,
		stats:    cfg.Stats,
		mux:      cfg.LogMux,
		clock:    cfg.Clock,
		timings:  timings,
		logger:   cfg.Logger,
		agg: &statsAggregator{
			registry:     registry,
			repo:         cfg.Stats,
			mux:          cfg.LogMux,
			clock:        cfg.Clock,
			interval:     timings.StatsInterval,
			writeTimeout: timings.StatsWriteTimeout,
			logger:       cfg.Logger,
		},
		baseCtx:   baseCtx,
		cancelAll: cancel,
	}
}

func (s *Supervisor) Registry() *Registry {
	return s.registry
}

func (s *Supervisor) Add(ctx context.Context, cmd AddCommand) (AddResult, error) {
	credential, err := domain.NormalizeCredential(cmd.Credential)
	if err != nil {
		return AddResult{}, err
	}
	key := domain.KeyFor(credential)
	if s.registry.Has(key) {
		return AddResult{}, domain.ErrSessionExists
	}

	tenantID, err := s.api.DetectTenant(ctx, credential)
	if err != nil {
		if errors.Is(err, domain.ErrTenantNotFound) {
			return AddResult{}, fmt.Errorf("detect tenant: %w", err)
		}
		return AddResult{}, fmt.Errorf("%w: %w", domain.ErrTenantNotFound, err)
	}

	now := s.clock.Now()
	session := newSession(credential, tenantID, now, s.timings.LogCapacity)
	if err := s.registry.Create(key, session); err != nil {
		return AddResult{}, err
	}

	actor := strings.TrimSpace(cmd.Actor)
	if actor == "" {
		actor = "operator"
	}
	var added LogEvent
	s.registry.Update(key, func(rec *Session) {
		added = s.mux.Record(rec, domain.SeveritySuccess, "added by "+actor)
	})
	s.mux.Emit(added)

	record := domain.TokenRecord{Key: key, Credential: credential, TenantID: tenantID, AddedAt: now}
	if err := s.tokens.Upsert(ctx, record); err != nil {
		s.registry.Remove(key)
		return AddResult{}, fmt.Errorf("persist token: %w", err)
	}
	if err := s.stats.Ensure(ctx, key, now); err != nil {
		s.logger.Warn().Err(err).Str("session", key.Tail()).Msg("create lifetime stats failed")
	}
	observability.SetSessions(s.registry.Len())

	if err := s.StartSession(key); err != nil {
		return AddResult{}, err
	}
	return AddResult{Key: key, TenantID: tenantID}, nil
}

// StartSession replaces any tasks of key with a fresh worker and stats
// aggregator.
func (s *Supervisor) StartSession(key domain.SessionKey) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	var previous *taskSet
	if !s.registry.Update(key, func(rec *Session) {
		previous = rec.tasks
		rec.tasks = nil
	}) {
		return domain.ErrSessionNotFound
	}
	previous.stop()
	s.agg.flush(context.Background(), key)

	ctx, cancel := context.WithCancel(s.baseCtx)
	tasks := newTaskSet(cancel)
	now := s.clock.Now()
	var starting LogEvent
	if !s.registry.Update(key, func(rec *Session) {
		rec.resetCycle(now)
		rec.running = true
		rec.status = domain.StatusStarting
		rec.lastError = ""
		rec.tasks = tasks
		starting = s.mux.Record(rec, domain.SeverityInfo, fmt.Sprintf("starting (tenant: %s)", rec.TenantID))
	}) {
		cancel()
		return domain.ErrSessionNotFound
	}
	s.mux.Emit(starting)

	w := &worker{
		key:      key,
		registry: s.registry,
		api:      s.api,
		mux:      s.mux,
		clock:    s.clock,
		timings:  s.timings,
		stats:    s.agg,
		logger:   s.logger,
	}
	go func() {
		defer close(tasks.worker)
		w.run(ctx)
	}()
	go func() {
		defer close(tasks.stats)
		s.agg.run(ctx, key)
	}()
	return nil
}

func (s *Supervisor) Stop(ctx context.Context, ref string) error {
	credential, tenantID, err := s.halt(ctx, ref)
	if err != nil {
		return err
	}
	s.stopRemote(ctx, credential, tenantID)
	return nil
}

func (s *Supervisor) halt(ctx context.Context, ref string) (string, string, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	key, err := s.registry.Resolve(ref)
	if err != nil {
		return "", "", err
	}

	var tasks *taskSet
	var credential, tenantID string
	var stopped LogEvent
	if !s.registry.Update(key, func(rec *Session) {
		rec.running = false
		rec.status = domain.StatusStopped
		tasks = rec.tasks
		rec.tasks = nil
		credential = rec.Credential
		tenantID = rec.TenantID
		stopped = s.mux.Record(rec, domain.SeverityWarn, "stopped by operator")
	}) {
		return "", "", domain.ErrSessionNotFound
	}
	s.mux.Emit(stopped)

	tasks.stop()
	s.agg.flush(ctx, key)
	return credential, tenantID, nil
}

func (s *Supervisor) Restart(ctx context.Context, ref string) error {
	key, err := s.registry.Resolve(ref)
	if err != nil {
		return err
	}
	if err := s.Stop(ctx, string(key)); err != nil {
		return err
	}
	if !sleep(ctx, s.clock, s.timings.RestartPause) {
		return ctx.Err()
	}
	return s.StartSession(key)
}

func (s *Supervisor) Remove(ctx context.Context, ref string) (domain.SessionKey, error) {
	session, err := s.detach(ctx, ref)
	if err != nil {
		return "", err
	}
	s.stopRemote(ctx, session.Credential, session.TenantID)

	if err := s.tokens.Delete(ctx, session.Key); err != nil {
		return session.Key, fmt.Errorf("delete token: %w", err)
	}
	return session.Key, nil
}

func (s *Supervisor) detach(ctx context.Context, ref string) (*Session, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	key, err := s.registry.Resolve(ref)
	if err != nil {
		return nil, err
	}
	session, ok := s.registry.Remove(key)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	observability.SetSessions(s.registry.Len())

	var tasks *taskSet
	s.registry.locked(func() {
		session.running = false
		tasks = session.tasks
		session.tasks = nil
	})
	tasks.stop()
	s.agg.flushDetached(ctx, session)

	s.logger.Warn().Str("session", key.Tail()).Msg("session removed")
	return session, nil
}

func (s *Supervisor) stopRemote(ctx context.Context, credential, tenantID string) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remoteStopTimeout)
	defer cancel()
	if err := s.api.Stop(stopCtx, credential, tenantID); err != nil {
		s.logger.Debug().Err(err).Str("session", domain.Tail(credential)).Msg("remote stop failed")
	}
}

func (s *Supervisor) List(ctx context.Context) []Snapshot {
	snaps := s.registry.SnapshotAll(s.clock.Now())
	for i := range snaps {
		snaps[i].Lifetime = s.lifetime(ctx, snaps[i].Key)
	}
	return snaps
}

func (s *Supervisor) Get(ctx context.Context, ref string) (Snapshot, error) {
	key, err := s.registry.Resolve(ref)
	if err != nil {
		return Snapshot{}, err
	}
	snap, ok := s.registry.Snapshot(key, s.clock.Now())
	if !ok {
		return Snapshot{}, domain.ErrSessionNotFound
	}
	snap.Lifetime = s.lifetime(ctx, key)
	return snap, nil
}

func (s *Supervisor) lifetime(ctx context.Context, key domain.SessionKey) domain.LifetimeStats {
	stats, err := s.stats.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrStatsNotFound) {
			s.logger.Warn().Err(err).Str("session", key.Tail()).Msg("read lifetime stats failed")
		}
		return domain.LifetimeStats{Key: key}
	}
	return stats
}

// Shutdown stops every task and drains pending stats. Sessions stay
// registered and persisted.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.cancelAll()

	var all []*taskSet
	s.registry.ForEach(func(rec *Session) {
		if rec.tasks != nil {
			all = append(all, rec.tasks)
			rec.tasks = nil
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, tasks := range all {
			tasks.stop()
		}
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("wait for session tasks: %w", ctx.Err())
	}

	for _, key := range s.registry.Keys() {
		s.agg.flush(ctx, key)
	}
	return nil
}

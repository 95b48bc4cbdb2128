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

const defaultNotifyQueueSize = 1000

type LogMuxConfig struct {
	Logger    zerolog.Logger
	Notifier  ports.Notifier
	Clock     ports.Clock
	QueueSize int
	Throttle  time.Duration
}

// LogMux fans session events out to the session ring, the process log and
// the optional chat notifier.
type LogMux struct {
	logger   zerolog.Logger
	notifier ports.Notifier
	clock    ports.Clock
	throttle time.Duration
	queue    chan string
}

func NewLogMux(cfg LogMuxConfig) *LogMux {
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultNotifyQueueSize
	}

	mux := &LogMux{
		logger:   cfg.Logger,
		notifier: cfg.Notifier,
		clock:    cfg.Clock,
		throttle: cfg.Throttle,
	}
	if cfg.Notifier != nil {
		mux.queue = make(chan string, cfg.QueueSize)
	}
	return mux
}

// LogEvent is a session event already in the ring and waiting to be
// emitted to the process log and the notifier.
type LogEvent struct {
	entry domain.LogEntry
	tail  string
}

// Record appends the event to the session ring. It must be called with the
// registry lock held; pass the result to Emit once the lock is released.
func (m *LogMux) Record(s *Session, severity domain.Severity, message string) LogEvent {
	entry := domain.LogEntry{At: m.clock.Now(), Severity: severity, Message: message}
	s.appendLog(entry)
	return LogEvent{entry: entry, tail: domain.Tail(s.Credential)}
}

// Emit writes the console line and queues the notification of each event.
// It never blocks; a full queue drops the notification.
func (m *LogMux) Emit(events ...LogEvent) {
	for _, ev := range events {
		if ev.entry.Message == "" {
			continue
		}

		line := m.logger.WithLevel(zerologLevel(ev.entry.Severity)).Str("session", ev.tail)
		if ev.entry.Severity == domain.SeveritySuccess {
			line = line.Bool("success", true)
		}
		line.Msg(ev.entry.Message)

		if m.queue == nil {
			continue
		}
		select {
		case m.queue <- formatNotification(ev.entry, ev.tail):
		default:
			observability.RecordNotificationDropped()
		}
	}
}

// Run forwards queued notifications one at a time until ctx is cancelled.
func (m *LogMux) Run(ctx context.Context) {
	if m.queue == nil {
		<-ctx.Done()
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case line := <-m.queue:
			if err := m.notifier.Send(ctx, line); err != nil && ctx.Err() == nil {
				m.logger.Warn().Err(err).Msg("notification send failed")
			}
			if !sleep(ctx, m.clock, m.throttle) {
				return
			}
		}
	}
}

func formatNotification(entry domain.LogEntry, tail string) string {
	ts := entry.At.Format("15:04:05")
	switch entry.Severity {
	case domain.SeveritySuccess:
		return fmt.Sprintf("`[%s] [%s]  + %s`", ts, tail, entry.Message)
	case domain.SeverityWarn:
		return fmt.Sprintf("**[%s] [%s]  ! %s**", ts, tail, entry.Message)
	case domain.SeverityError:
		return fmt.Sprintf("**[%s] [%s]  x %s**", ts, tail, entry.Message)
	default:
		return fmt.Sprintf("[%s] [%s]    %s", ts, tail, entry.Message)
	}
}

func zerologLevel(severity domain.Severity) zerolog.Level {
	switch severity {
	case domain.SeverityWarn:
		return zerolog.WarnLevel
	case domain.SeverityError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// sleep waits for d or until ctx is done. It reports whether the full wait
// elapsed.
func sleep(ctx context.Context, clock ports.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-clock.After(d):
		return ctx.Err() == nil
	}
}

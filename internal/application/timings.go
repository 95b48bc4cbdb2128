package application

import (
	"time"

	"github.com/bnema/afk-farmer/internal/domain"
)

// Timings holds every wait the supervisor performs. Zero fields fall back
// to the production defaults.
type Timings struct {
	HeartbeatInterval time.Duration
	RestAfter         time.Duration
	RestDuration      time.Duration
	StartSettle       time.Duration
	StartRetryStep    time.Duration
	StartRetryMax     time.Duration
	// StartMaxAttempts caps consecutive failed starts. Zero retries forever.
	StartMaxAttempts int
	StatsInterval    time.Duration
	// StatsWriteTimeout bounds one lifetime stats write.
	StatsWriteTimeout time.Duration
	StaggerStep       time.Duration
	RestartPause      time.Duration
	LogCapacity       int
}

func DefaultTimings() Timings {
	return Timings{
		HeartbeatInterval: 30 * time.Second,
		RestAfter:         time.Hour,
		RestDuration:      60 * time.Second,
		StartSettle:       2 * time.Second,
		StartRetryStep:    15 * time.Second,
		StartRetryMax:     120 * time.Second,
		StatsInterval:     60 * time.Second,
		StatsWriteTimeout: 30 * time.Second,
		StaggerStep:       3 * time.Second,
		RestartPause:      time.Second,
		LogCapacity:       200,
	}
}

func (t Timings) withDefaults() Timings {
	d := DefaultTimings()
	if t.HeartbeatInterval <= 0 {
		t.HeartbeatInterval = d.HeartbeatInterval
	}
	if t.RestAfter <= 0 {
		t.RestAfter = d.RestAfter
	}
	if t.RestDuration <= 0 {
		t.RestDuration = d.RestDuration
	}
	if t.StartSettle <= 0 {
		t.StartSettle = d.StartSettle
	}
	if t.StartRetryStep <= 0 {
		t.StartRetryStep = d.StartRetryStep
	}
	if t.StartRetryMax <= 0 {
		t.StartRetryMax = d.StartRetryMax
	}
	if t.StartMaxAttempts < 0 {
		t.StartMaxAttempts = 0
	}
	if t.StatsInterval <= 0 {
		t.StatsInterval = d.StatsInterval
	}
	if t.StatsWriteTimeout <= 0 {
		t.StatsWriteTimeout = d.StatsWriteTimeout
	}
	if t.StaggerStep < 0 {
		t.StaggerStep = d.StaggerStep
	}
	if t.RestartPause <= 0 {
		t.RestartPause = d.RestartPause
	}
	if t.LogCapacity <= 0 {
		t.LogCapacity = d.LogCapacity
	}
	return t
}

func (t Timings) startBackoff() domain.LinearBackoff {
	return domain.LinearBackoff{Step: t.StartRetryStep, Max: t.StartRetryMax}
}

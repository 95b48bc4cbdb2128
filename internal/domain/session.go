package domain

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusIdle     Status = "idle"
	StatusStarting Status = "starting"
	StatusFarming  Status = "farming"
	StatusResting  Status = "resting"
	StatusStopped  Status = "stopped"
)

func (s Status) Label() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusStarting:
		return "Starting"
	case StatusFarming:
		return "Farming"
	case StatusResting:
		return "Resting"
	case StatusStopped:
		return "Stopped"
	default:
		return string(s)
	}
}

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarn    Severity = "warn"
	SeverityError   Severity = "error"
)

type LogEntry struct {
	At       time.Time
	Severity Severity
	Message  string
}

type TokenRecord struct {
	Key        SessionKey
	Credential string
	TenantID   string
	AddedAt    time.Time
}

type LifetimeStats struct {
	Key              SessionKey
	HeartbeatsOK     int64
	HeartbeatsFailed int64
	UptimeSeconds    int64
	FirstSeen        time.Time
}

// StatsDelta is the amount added to a LifetimeStats row on flush.
type StatsDelta struct {
	OK            int64
	Failed        int64
	UptimeSeconds int64
}

// IsZero reports whether the delta carries no heartbeat activity. Uptime
// alone is not worth a write.
func (d StatsDelta) IsZero() bool {
	return d.OK == 0 && d.Failed == 0
}

func (s LifetimeStats) Add(d StatsDelta) LifetimeStats {
	s.HeartbeatsOK += d.OK
	s.HeartbeatsFailed += d.Failed
	s.UptimeSeconds += d.UptimeSeconds
	return s
}

// FormatUptime renders the time elapsed since start as HH:MM:SS, or a
// placeholder when the session is not farming.
func FormatUptime(start, now time.Time) string {
	if start.IsZero() {
		return "--:--:--"
	}

	elapsed := int64(now.Sub(start) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	h := elapsed / 3600
	m := (elapsed % 3600) / 60
	s := elapsed % 60

	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// SuccessRate is the percentage of successful heartbeats, rounded to one
// decimal. Zero heartbeats yields 0.
func SuccessRate(ok, failed int64) float64 {
	total := ok + failed
	if total == 0 {
		return 0
	}

	rate := float64(ok) / float64(total) * 1000
	return float64(int64(rate+0.5)) / 10
}

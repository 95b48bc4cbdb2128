package application

import (
	"time"

	"github.com/bnema/afk-farmer/internal/domain"
)

// Snapshot is a copy of a session's observable state.
type Snapshot struct {
	Key              domain.SessionKey    `json:"key"`
	Tail             string               `json:"tail"`
	TenantID         string               `json:"tenant_id"`
	Running          bool                 `json:"running"`
	Status           domain.Status        `json:"status"`
	Uptime           string               `json:"uptime"`
	HeartbeatsOK     int64                `json:"hb_ok"`
	HeartbeatsFailed int64                `json:"hb_fail"`
	SuccessRate      float64              `json:"success_rate"`
	LastError        string               `json:"last_error,omitempty"`
	LastHeartbeat    time.Time            `json:"last_heartbeat"`
	AddedAt          time.Time            `json:"added_at"`
	Logs             []domain.LogEntry    `json:"logs"`
	Lifetime         domain.LifetimeStats `json:"lifetime"`
}

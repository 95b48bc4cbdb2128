package ports

import (
	"context"
	"time"

	"github.com/bnema/afk-farmer/internal/domain"
)

type LifetimeStatsRepository interface {
	Get(ctx context.Context, key domain.SessionKey) (domain.LifetimeStats, error)
	// Ensure creates a zeroed row with the given first-seen time when none
	// exists. Existing rows are left untouched.
	Ensure(ctx context.Context, key domain.SessionKey, firstSeen time.Time) error
	// AddDelta adds delta to the row for key, creating it with firstSeen=now
	// when absent.
	AddDelta(ctx context.Context, key domain.SessionKey, delta domain.StatsDelta, now time.Time) error
}

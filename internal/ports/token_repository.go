package ports

import (
	"context"

	"github.com/bnema/afk-farmer/internal/domain"
)

type TokenRepository interface {
	Upsert(ctx context.Context, record domain.TokenRecord) error
	Delete(ctx context.Context, key domain.SessionKey) error
	List(ctx context.Context) ([]domain.TokenRecord, error)
}

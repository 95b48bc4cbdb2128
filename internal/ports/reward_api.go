package ports

import "context"

// RewardAPI is the remote service that hosts AFK reward jobs. A nil error
// means the call was accepted.
type RewardAPI interface {
	Stop(ctx context.Context, credential, tenantID string) error
	Start(ctx context.Context, credential, tenantID string) error
	Heartbeat(ctx context.Context, credential, tenantID string) error
	DetectTenant(ctx context.Context, credential string) (string, error)
}

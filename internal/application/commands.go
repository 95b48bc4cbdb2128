package application

import "github.com/bnema/afk-farmer/internal/domain"

type AddCommand struct {
	Credential string
	// Actor names who asked for the session; it only appears in the log.
	Actor string
}

type AddResult struct {
	Key      domain.SessionKey
	TenantID string
}

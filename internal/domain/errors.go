package domain

import "errors"

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExists     = errors.New("session already exists")
	ErrAmbiguousSession  = errors.New("session reference matches more than one session")
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrStatsNotFound     = errors.New("lifetime stats not found")
)

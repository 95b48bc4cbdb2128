package domain

import (
	"strings"
)

const (
	bearerPrefix = "Bearer "
	keyLength    = 16
	tailLength   = 8
)

// SessionKey identifies a session. It is derived from the trailing
// characters of the credential so it stays stable across restarts.
type SessionKey string

// NormalizeCredential trims the raw credential and adds the bearer prefix
// expected by the remote API.
func NormalizeCredential(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.TrimSpace(strings.TrimPrefix(trimmed, bearerPrefix)) == "" {
		return "", ErrInvalidCredential
	}
	if !strings.HasPrefix(trimmed, bearerPrefix) {
		trimmed = bearerPrefix + trimmed
	}

	return trimmed, nil
}

func KeyFor(credential string) SessionKey {
	return SessionKey(lastN(credential, keyLength))
}

// Tail returns the short suffix operators use to recognise a credential.
func Tail(credential string) string {
	return lastN(credential, tailLength)
}

func (k SessionKey) Tail() string {
	return lastN(string(k), tailLength)
}

func lastN(value string, n int) string {
	if len(value) <= n {
		return value
	}

	return value[len(value)-n:]
}

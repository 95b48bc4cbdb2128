package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int                  `toml:"version"`
	Tokens   []tokenSchema        `toml:"tokens"`
	Lifetime []lifetimeStatSchema `toml:"lifetime_stats"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported sessions schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type tokenSchema struct {
	Key        string `toml:"key"`
	Credential string `toml:"credential"`
	TenantID   string `toml:"tenant_id"`
	AddedAt    string `toml:"added_at"`
}

type lifetimeStatSchema struct {
	Key             string `toml:"key"`
	TotalHBOK       int64  `toml:"total_hb_ok"`
	TotalHBFail     int64  `toml:"total_hb_fail"`
	TotalUptimeSecs int64  `toml:"total_uptime_secs"`
	FirstSeen       string `toml:"first_seen"`
}

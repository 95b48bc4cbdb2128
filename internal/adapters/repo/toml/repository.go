package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bnema/afk-farmer/internal/domain"
	"github.com/bnema/afk-farmer/internal/ports"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	storagePathKey     = "storage.path"
	sessionsFileMode   = 0o600
	sessionsDirMode    = 0o700
	sessionsConfigDir  = ".afk"
	sessionsConfigFile = "sessions.toml"
	tempFilePattern    = ".sessions-*.toml.tmp"
)

// Repository stores tokens and lifetime stats in one TOML file. Every
// write rewrites the file atomically.
type Repository struct {
	path string
	mu   *sync.RWMutex
}

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

var (
	_ ports.TokenRepository         = (*Repository)(nil)
	_ ports.LifetimeStatsRepository = (*Repository)(nil)
)

func NewRepository(cfg *viper.Viper) (*Repository, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	path := cfg.GetString(storagePathKey)
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(homeDir, sessionsConfigDir, sessionsConfigFile)
	}

	path, err := normalizePath(path)
	if err != nil {
		return nil, err
	}

	return &Repository{path: path, mu: lockForPath(path)}, nil
}

func (r *Repository) Upsert(ctx context.Context, record domain.TokenRecord) error {
	return r.update(ctx, func(file *fileSchema) {
		encoded := tokenSchema{
			Key:        string(record.Key),
			Credential: record.Credential,
			TenantID:   record.TenantID,
			AddedAt:    formatTime(record.AddedAt),
		}
		for i := range file.Tokens {
			if file.Tokens[i].Key == encoded.Key {
				file.Tokens[i] = encoded
				return
			}
		}
		file.Tokens = append(file.Tokens, encoded)
	})
}

func (r *Repository) Delete(ctx context.Context, key domain.SessionKey) error {
	return r.update(ctx, func(file *fileSchema) {
		kept := file.Tokens[:0]
		for _, token := range file.Tokens {
			if token.Key != string(key) {
				kept = append(kept, token)
			}
		}
		file.Tokens = kept
	})
}

func (r *Repository) List(ctx context.Context) ([]domain.TokenRecord, error) {
	file, err := r.read(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]domain.TokenRecord, 0, len(file.Tokens))
	for _, token := range file.Tokens {
		records = append(records, domain.TokenRecord{
			Key:        domain.SessionKey(token.Key),
			Credential: token.Credential,
			TenantID:   token.TenantID,
			AddedAt:    parseTime(token.AddedAt),
		})
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].AddedAt.Equal(records[j].AddedAt) {
			return records[i].Key < records[j].Key
		}
		return records[i].AddedAt.Before(records[j].AddedAt)
	})

	return records, nil
}

func (r *Repository) Get(ctx context.Context, key domain.SessionKey) (domain.LifetimeStats, error) {
	file, err := r.read(ctx)
	if err != nil {
		return domain.LifetimeStats{}, err
	}

	for _, entry := range file.Lifetime {
		if entry.Key == string(key) {
			return fromLifetimeSchema(entry), nil
		}
	}

	return domain.LifetimeStats{}, domain.ErrStatsNotFound
}

func (r *Repository) Ensure(ctx context.Context, key domain.SessionKey, firstSeen time.Time) error {
	return r.update(ctx, func(file *fileSchema) {
		for _, entry := range file.Lifetime {
			if entry.Key == string(key) {
				return
			}
		}
		file.Lifetime = append(file.Lifetime, lifetimeStatSchema{Key: string(key), FirstSeen: formatTime(firstSeen)})
	})
}

func (r *Repository) AddDelta(ctx context.Context, key domain.SessionKey, delta domain.StatsDelta, now time.Time) error {
	return r.update(ctx, func(file *fileSchema) {
		for i := range file.Lifetime {
			if file.Lifetime[i].Key == string(key) {
				file.Lifetime[i].TotalHBOK += delta.OK
				file.Lifetime[i].TotalHBFail += delta.Failed
				file.Lifetime[i].TotalUptimeSecs += delta.UptimeSeconds
				return
			}
		}
		file.Lifetime = append(file.Lifetime, lifetimeStatSchema{
			Key:             string(key),
			TotalHBOK:       delta.OK,
			TotalHBFail:     delta.Failed,
			TotalUptimeSecs: delta.UptimeSeconds,
			FirstSeen:       formatTime(now),
		})
	})
}

func (r *Repository) read(ctx context.Context) (fileSchema, error) {
	if err := ctx.Err(); err != nil {
		return fileSchema{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.readSchema()
}

func (r *Repository) update(ctx context.Context, mutate func(*fileSchema)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := r.readSchema()
	if err != nil {
		return err
	}
	mutate(&file)

	if err := ctx.Err(); err != nil {
		return err
	}

	return r.writeSchema(file)
}

func (r *Repository) readSchema() (fileSchema, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSchema{Version: currentSchemaVersion}, nil
		}
		return fileSchema{}, fmt.Errorf("read sessions file: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return fileSchema{}, fmt.Errorf("decode sessions file: %w", err)
	}
	if err := file.validateVersion(); err != nil {
		return fileSchema{}, err
	}
	file.applyDefaults()

	return file, nil
}

func (r *Repository) writeSchema(file fileSchema) error {
	file.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(r.path), sessionsDirMode); err != nil {
		return fmt.Errorf("create sessions directory: %w", err)
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode sessions file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp sessions file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp sessions file: %w", err)
	}

	if err := tempFile.Chmod(sessionsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp sessions file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp sessions file: %w", err)
	}

	if err := os.Rename(tempName, r.path); err != nil {
		return fmt.Errorf("replace sessions file: %w", err)
	}

	cleanup = false

	return nil
}

func normalizePath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve sessions path: %w", err)
	}

	return filepath.Clean(absPath), nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}

	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func fromLifetimeSchema(entry lifetimeStatSchema) domain.LifetimeStats {
	return domain.LifetimeStats{
		Key:              domain.SessionKey(entry.Key),
		HeartbeatsOK:     entry.TotalHBOK,
		HeartbeatsFailed: entry.TotalHBFail,
		UptimeSeconds:    entry.TotalUptimeSecs,
		FirstSeen:        parseTime(entry.FirstSeen),
	}
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.UTC().Format(time.RFC3339Nano)
}

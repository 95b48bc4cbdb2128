// Package sqlite persists tokens and lifetime stats in a SQLite database.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/afk-farmer/internal/domain"
	"github.com/bnema/afk-farmer/internal/ports"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const (
	defaultPoolSize = 4
	dbDirMode       = 0o700
)

const schema = `
CREATE TABLE IF NOT EXISTS tokens (
	key        TEXT PRIMARY KEY,
	credential TEXT NOT NULL,
	tenant_id  TEXT NOT NULL,
	added_at   REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS lifetime_stats (
	key               TEXT PRIMARY KEY,
	total_hb_ok       INTEGER NOT NULL DEFAULT 0,
	total_hb_fail     INTEGER NOT NULL DEFAULT 0,
	total_uptime_secs INTEGER NOT NULL DEFAULT 0,
	first_seen        REAL NOT NULL
);
`

// Store implements both persistence ports on one connection pool.
type Store struct {
	pool *sqlitex.Pool
	path string
}

var (
	_ ports.TokenRepository         = (*Store)(nil)
	_ ports.LifetimeStatsRepository = (*Store)(nil)
)

func Open(path string, poolSize int) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite store: path is required")
	}
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	if err := os.MkdirAll(filepath.Dir(path), dbDirMode); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite pool %s: %w", path, err)
	}

	return &Store{pool: pool, path: path}, nil
}

func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("close sqlite pool %s: %w", s.path, err)
	}
	return nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=15000",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	return nil
}

func (s *Store) Upsert(ctx context.Context, record domain.TokenRecord) error {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO tokens (key, credential, tenant_id, added_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			credential = excluded.credential,
			tenant_id  = excluded.tenant_id,
			added_at   = excluded.added_at`,
		&sqlitex.ExecOptions{
			Args: []any{string(record.Key), record.Credential, record.TenantID, toUnix(record.AddedAt)},
		})
	if err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, key domain.SessionKey) error {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if err := sqlitex.Execute(conn, `DELETE FROM tokens WHERE key = ?`, &sqlitex.ExecOptions{
		Args: []any{string(key)},
	}); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}

	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.TokenRecord, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return nil, err
	}
	defer s.pool.Put(conn)

	var records []domain.TokenRecord
	err = sqlitex.Execute(conn,
		`SELECT key, credential, tenant_id, added_at FROM tokens ORDER BY added_at, key`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				records = append(records, domain.TokenRecord{
					Key:        domain.SessionKey(stmt.ColumnText(0)),
					Credential: stmt.ColumnText(1),
					TenantID:   stmt.ColumnText(2),
					AddedAt:    fromUnix(stmt.ColumnFloat(3)),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}

	return records, nil
}

func (s *Store) Get(ctx context.Context, key domain.SessionKey) (domain.LifetimeStats, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return domain.LifetimeStats{}, err
	}
	defer s.pool.Put(conn)

	var (
		stats domain.LifetimeStats
		found bool
	)
	err = sqlitex.Execute(conn,
		`SELECT total_hb_ok, total_hb_fail, total_uptime_secs, first_seen FROM lifetime_stats WHERE key = ?`,
		&sqlitex.ExecOptions{
			Args: []any{string(key)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				stats = domain.LifetimeStats{
					Key:              key,
					HeartbeatsOK:     stmt.ColumnInt64(0),
					HeartbeatsFailed: stmt.ColumnInt64(1),
					UptimeSeconds:    stmt.ColumnInt64(2),
					FirstSeen:        fromUnix(stmt.ColumnFloat(3)),
				}
				return nil
			},
		})
	if err != nil {
		return domain.LifetimeStats{}, fmt.Errorf("get lifetime stats: %w", err)
	}
	if !found {
		return domain.LifetimeStats{}, domain.ErrStatsNotFound
	}

	return stats, nil
}

func (s *Store) Ensure(ctx context.Context, key domain.SessionKey, firstSeen time.Time) error {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if err := sqlitex.Execute(conn,
		`INSERT INTO lifetime_stats (key, first_seen) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
		&sqlitex.ExecOptions{Args: []any{string(key), toUnix(firstSeen)}},
	); err != nil {
		return fmt.Errorf("ensure lifetime stats: %w", err)
	}

	return nil
}

func (s *Store) AddDelta(ctx context.Context, key domain.SessionKey, delta domain.StatsDelta, now time.Time) error {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO lifetime_stats (key, total_hb_ok, total_hb_fail, total_uptime_secs, first_seen)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			total_hb_ok       = total_hb_ok + excluded.total_hb_ok,
			total_hb_fail     = total_hb_fail + excluded.total_hb_fail,
			total_uptime_secs = total_uptime_secs + excluded.total_uptime_secs`,
		&sqlitex.ExecOptions{
			Args: []any{string(key), delta.OK, delta.Failed, delta.UptimeSeconds, toUnix(now)},
		})
	if err != nil {
		return fmt.Errorf("add lifetime stats delta: %w", err)
	}

	return nil
}

func (s *Store) take(ctx context.Context) (*sqlite.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("take sqlite connection: %w", err)
	}

	return conn, nil
}

func toUnix(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnix(seconds float64) time.Time {
	if seconds == 0 {
		return time.Time{}
	}
	whole := int64(seconds)
	nanos := int64((seconds - float64(whole)) * float64(time.Second))
	return time.Unix(whole, nanos)
}

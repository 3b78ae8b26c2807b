package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// PGPool is the subset of pgxpool.Pool used by PGStore.
type PGPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// PGStore keeps one row per session field in Postgres. The table is created
// by the portal_session migration in the db package.
type PGStore struct {
	pool PGPool
	ttl  time.Duration
	now  func() time.Time
}

// NewPGStore creates a Postgres-backed store with the given idle TTL.
func NewPGStore(pool PGPool, ttl time.Duration) *PGStore {
	return &PGStore{pool: pool, ttl: ttl, now: time.Now}
}

func (s *PGStore) Get(ctx context.Context, id string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM portal_session_value
		 WHERE session_id = $1 AND updated_at > $2`,
		id, s.now().Add(-s.ttl))
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	defer rows.Close()

	fields := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan session field: %w", err)
		}
		fields[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session fields: %w", err)
	}

	if len(fields) > 0 {
		if _, err := s.pool.Exec(ctx,
			`UPDATE portal_session_value SET updated_at = $2 WHERE session_id = $1`,
			id, s.now()); err != nil {
			return nil, fmt.Errorf("touch session: %w", err)
		}
	}
	return fields, nil
}

// sortedFields splits fields into parallel key and value slices ordered by key.
func sortedFields(fields map[string]string) ([]string, []string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = fields[k]
	}
	return keys, values
}

func (s *PGStore) Set(ctx context.Context, id string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	keys, values := sortedFields(fields)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO portal_session_value (session_id, key, value, updated_at)
		 SELECT $1, t.k, t.v, $4 FROM unnest($2::text[], $3::text[]) AS t(k, v)
		 ON CONFLICT (session_id, key)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		id, keys, values, s.now())
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// Replace runs the delete and the upsert as one statement. Dropped keys that
// are also in fields are left to the upsert.
func (s *PGStore) Replace(ctx context.Context, id string, fields map[string]string, drop []string) error {
	keys, values := sortedFields(fields)
	if drop == nil {
		drop = []string{}
	}

	_, err := s.pool.Exec(ctx,
		`WITH dropped AS (
			DELETE FROM portal_session_value
			WHERE session_id = $1 AND key = ANY($5::text[]) AND NOT (key = ANY($2::text[]))
		 )
		 INSERT INTO portal_session_value (session_id, key, value, updated_at)
		 SELECT $1, t.k, t.v, $4 FROM unnest($2::text[], $3::text[]) AS t(k, v)
		 ON CONFLICT (session_id, key)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		id, keys, values, s.now(), drop)
	if err != nil {
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`DELETE FROM portal_session_value WHERE session_id = $1 AND key = ANY($2)`,
		id, keys)
	if err != nil {
		return fmt.Errorf("delete session fields: %w", err)
	}
	return nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Purge deletes every field idle for longer than the TTL.
func (s *PGStore) Purge(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM portal_session_value WHERE updated_at <= $1`,
		s.now().Add(-s.ttl))
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RunPurge purges idle sessions on every tick until ctx is done.
func (s *PGStore) RunPurge(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Purge(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("session purge failed")
				continue
			}
			if n > 0 {
				logger.Debug().Int64("rows", n).Msg("purged idle sessions")
			}
		}
	}
}

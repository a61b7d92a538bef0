package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rowanad/commentable/internal/errors"
)

// PostgresStore implements KV on a single versioned table, the shape a
// Cloudflare D1 / SQL-class backend takes. Conditional writes are emulated
// with guarded INSERT/UPDATE statements checked by row count.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS kv_records (
	k       TEXT PRIMARY KEY,
	v       BYTEA NOT NULL,
	version BIGINT NOT NULL
)`

// NewPostgresStore creates a new PostgreSQL adapter and ensures the table
// exists
func NewPostgresStore(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	logger *zap.Logger,
) (*PostgresStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(context.Background(), postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &PostgresStore{
		pool:   pool,
		logger: logger,
	}, nil
}

// Get retrieves a record by key
func (s *PostgresStore) Get(ctx context.Context, key string) (*Record, error) {
	var rec Record
	err := s.pool.QueryRow(ctx,
		`SELECT v, version FROM kv_records WHERE k = $1`, key,
	).Scan(&rec.Value, &rec.Version)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Unavailable("postgres get", err)
	}
	return &rec, nil
}

// Put writes unconditionally, bumping the version
func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kv_records (k, v, version) VALUES ($1, $2, 1)
		ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, version = kv_records.version + 1`,
		key, value,
	)
	if err != nil {
		return errors.Unavailable("postgres put", err)
	}
	return nil
}

// CompareAndPut writes only if the stored version matches expectedVersion
func (s *PostgresStore) CompareAndPut(ctx context.Context, key string, expectedVersion int64, value []byte) error {
	if expectedVersion == 0 {
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO kv_records (k, v, version) VALUES ($1, $2, 1)
			ON CONFLICT (k) DO NOTHING`,
			key, value,
		)
		if err != nil {
			return errors.Unavailable("postgres compare-and-put", err)
		}
		if tag.RowsAffected() == 0 {
			return errors.VersionConflict(key, nil)
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE kv_records SET v = $2, version = version + 1
		WHERE k = $1 AND version = $3`,
		key, value, expectedVersion,
	)
	if err != nil {
		return errors.Unavailable("postgres compare-and-put", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.VersionConflict(key, nil)
	}
	return nil
}

// ScanPrefix returns matching entries in key order
func (s *PostgresStore) ScanPrefix(ctx context.Context, prefix, afterKey string, limit int) ([]Entry, error) {
	query := `
		SELECT k, v, version FROM kv_records
		WHERE k LIKE $1 ESCAPE '\' AND k > $2
		ORDER BY k`
	args := []interface{}{likePrefix(prefix), afterKey}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Unavailable("postgres scan", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Record.Value, &e.Record.Version); err != nil {
			return nil, errors.Unavailable("postgres scan", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Unavailable("postgres scan", err)
	}
	return entries, nil
}

// Delete removes a key
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv_records WHERE k = $1`, key); err != nil {
		return errors.Unavailable("postgres delete", err)
	}
	return nil
}

// Capabilities reports conditional-write support
func (s *PostgresStore) Capabilities() Capabilities {
	return Capabilities{ConditionalWrite: true}
}

// Ping checks database reachability
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// likePrefix escapes LIKE metacharacters in a literal prefix
func likePrefix(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}

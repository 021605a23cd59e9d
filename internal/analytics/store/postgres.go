package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/ratelimit-demo-go/internal/analytics"
)

// Schema creates the decisions table if it does not exist.
const Schema = `
CREATE TABLE IF NOT EXISTS ratelimit_decisions (
	id          BIGSERIAL PRIMARY KEY,
	key         TEXT        NOT NULL,
	client_ip   TEXT        NOT NULL,
	allowed     BOOLEAN     NOT NULL,
	count       BIGINT      NOT NULL,
	lim         BIGINT      NOT NULL,
	method      TEXT        NOT NULL,
	path        TEXT        NOT NULL,
	request_id  TEXT,
	decided_at  TIMESTAMPTZ NOT NULL
)`

// Postgres is a PostgreSQL implementation of analytics.Store.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a new PostgreSQL-backed analytics store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate applies Schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, Schema)

	return err
}

func (p *Postgres) SaveDecision(ctx context.Context, event *analytics.DecisionEvent) error {
	query := `
		INSERT INTO ratelimit_decisions
			(key, client_ip, allowed, count, lim, method, path, request_id, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := p.pool.Exec(ctx, query,
		event.Key,
		event.ClientIP,
		event.Allowed,
		event.Count,
		event.Limit,
		event.Method,
		event.Path,
		nullableString(event.RequestID),
		event.DecidedAt,
	)

	return err
}

// CountDenied returns how many denials were recorded for key.
func (p *Postgres) CountDenied(ctx context.Context, key string) (int64, error) {
	var n int64

	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM ratelimit_decisions WHERE key = $1 AND NOT allowed`, key,
	).Scan(&n)

	return n, err
}

// Shutdown closes the connection pool.
func (p *Postgres) Shutdown() error {
	p.pool.Close()

	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

// Compile-time check.
var _ analytics.Store = (*Postgres)(nil)

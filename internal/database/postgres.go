package database

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vielabs/tiki-review-crawler/internal/config"
	"github.com/vielabs/tiki-review-crawler/internal/review"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PgxPool is the slice of pgxpool.Pool the store needs; pgxmock
// satisfies it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresSink writes review rows into one table per quota group,
// named <prefix>_<group>. Duplicate dedup keys are dropped by the
// database, which makes replays after a crash harmless.
type PostgresSink struct {
	pool   PgxPool
	prefix string
}

// NewPostgresSink connects a pool and verifies it with a ping.
func NewPostgresSink(ctx context.Context, cfg config.DBConfig) (*PostgresSink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresSinkWithPool(pool, cfg.TablePrefix)
}

// NewPostgresSinkWithPool constructs a sink from an existing pool,
// primarily for testing.
func NewPostgresSinkWithPool(pool PgxPool, prefix string) (*PostgresSink, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if prefix == "" {
		prefix = "reviews"
	}
	if !validTableName.MatchString(prefix) {
		return nil, fmt.Errorf("invalid table prefix %q", prefix)
	}
	return &PostgresSink{pool: pool, prefix: prefix}, nil
}

func (s *PostgresSink) tableFor(group string) (string, error) {
	table := s.prefix + "_" + group
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// InitSchema creates the group tables when they do not exist yet.
func (s *PostgresSink) InitSchema(ctx context.Context, groups ...string) error {
	for _, group := range groups {
		table, err := s.tableFor(group)
		if err != nil {
			return err
		}
		ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	category TEXT,
	brand TEXT,
	product_model TEXT,
	product_name TEXT,
	rating SMALLINT,
	reviewer TEXT,
	review_date TEXT,
	review_text TEXT,
	image_urls TEXT,
	video_urls TEXT,
	product_link TEXT,
	review_id_hash CHAR(32) NOT NULL UNIQUE,
	source TEXT NOT NULL DEFAULT 'Tiki',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, table)
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}
	return nil
}

// Save inserts rows into the group's table, skipping dedup-key
// collisions, and returns the number of rows actually inserted.
func (s *PostgresSink) Save(ctx context.Context, group string, rows []review.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	table, err := s.tableFor(group)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	category, brand, product_model, product_name, rating, reviewer,
	review_date, review_text, image_urls, video_urls, product_link,
	review_id_hash, source
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (review_id_hash) DO NOTHING`, table)

	var inserted int
	for _, row := range rows {
		tag, err := s.pool.Exec(ctx, query,
			row.Category,
			row.Brand,
			row.Model,
			row.ProductName,
			row.Rating,
			row.Reviewer,
			row.ReviewDate,
			row.Body,
			row.ImageURLs,
			row.VideoURLs,
			row.ProductLink,
			row.DedupKey,
			row.Source,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert into %s: %w", table, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// Close releases the pool.
func (s *PostgresSink) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// Postgres persists matches in a shared Postgres database.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to url and applies the schema.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	if p != nil && p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *Postgres) RecordMatch(ctx context.Context, m Match) error {
	if p == nil || p.pool == nil {
		return ErrNotConfigured
	}
	if err := m.validate(); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO matches (session, winner, reason, left_name, right_name, bricks, started_at, ended_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.Session, m.Winner, m.Reason, m.Left, m.Right, m.Bricks,
		toMillis(m.StartedAt), toMillis(m.EndedAt),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAlreadyRecorded
		}
		return fmt.Errorf("record match: %w", err)
	}
	return nil
}

func (p *Postgres) RecentMatches(ctx context.Context, limit int) ([]Match, error) {
	if p == nil || p.pool == nil {
		return nil, ErrNotConfigured
	}
	rows, err := p.pool.Query(ctx,
		`SELECT session, winner, reason, left_name, right_name, bricks, started_at, ended_at
		   FROM matches
		  ORDER BY ended_at DESC, session
		  LIMIT $1`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("recent matches: %w", err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var (
			m              Match
			started, ended int64
		)
		if err := rows.Scan(&m.Session, &m.Winner, &m.Reason, &m.Left, &m.Right, &m.Bricks, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.StartedAt = fromMillis(started)
		m.EndedAt = fromMillis(ended)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent matches: %w", err)
	}
	return out, nil
}

// Package store keeps the history of finished matches.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrAlreadyRecorded = errors.New("match already recorded")
	ErrNotConfigured   = errors.New("storage is not configured")
)

// Match is one finished game.
type Match struct {
	Session   string    `json:"session"`
	Winner    string    `json:"winner"`
	Reason    string    `json:"reason"`
	Left      string    `json:"left"`
	Right     string    `json:"right"`
	Bricks    int       `json:"bricks"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}

func (m Match) validate() error {
	if strings.TrimSpace(m.Session) == "" {
		return fmt.Errorf("session is required")
	}
	if m.Winner == "" {
		return fmt.Errorf("winner is required")
	}
	if m.EndedAt.Before(m.StartedAt) {
		return fmt.Errorf("match ends before it starts")
	}
	return nil
}

type Store interface {
	RecordMatch(ctx context.Context, m Match) error
	// RecentMatches returns up to limit matches, newest first.
	RecentMatches(ctx context.Context, limit int) ([]Match, error)
	Close() error
}

const defaultLimit = 20

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return defaultLimit
	}
	return limit
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Open picks a backend from dsn: postgres:// or postgresql:// URLs use
// Postgres, anything else is a SQLite path (an optional sqlite:// prefix is stripped).
func Open(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, fmt.Errorf("database url is required")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	default:
		return OpenSQLite(strings.TrimPrefix(dsn, "sqlite://"))
	}
}

package store

import (
	"context"
	"errors"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTempStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "matches.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func match(session string, ended time.Time) Match {
	return Match{
		Session:   session,
		Winner:    "left",
		Reason:    "target",
		Left:      "ann",
		Right:     "bob",
		Bricks:    12,
		StartedAt: ended.Add(-time.Minute),
		EndedAt:   ended,
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenSQLite(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestRecordAndListRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)
	in := match("s-1", now)
	if err := s.RecordMatch(ctx, in); err != nil {
		t.Fatalf("record: %v", err)
	}

	got, err := s.RecentMatches(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("matches = %d, want 1", len(got))
	}
	g := got[0]
	if g.Session != in.Session || g.Winner != in.Winner || g.Reason != in.Reason ||
		g.Left != in.Left || g.Right != in.Right || g.Bricks != in.Bricks {
		t.Fatalf("match = %+v, want %+v", g, in)
	}
	if !g.StartedAt.Equal(in.StartedAt) || !g.EndedAt.Equal(in.EndedAt) {
		t.Fatalf("times = %v..%v, want %v..%v", g.StartedAt, g.EndedAt, in.StartedAt, in.EndedAt)
	}
}

func TestRecentMatchesNewestFirstAndLimited(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	ctx := context.Background()
	base := time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := s.RecordMatch(ctx, match(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}

	got, err := s.RecentMatches(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].Session != "c" || got[1].Session != "b" {
		t.Fatalf("recent = %+v, want c then b", got)
	}
}

func TestRecordMatchDuplicate(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	ctx := context.Background()
	m := match("dup", time.Now())
	if err := s.RecordMatch(ctx, m); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.RecordMatch(ctx, m); !errors.Is(err, ErrAlreadyRecorded) {
		t.Fatalf("err = %v, want ErrAlreadyRecorded", err)
	}
}

func TestRecordMatchValidates(t *testing.T) {
	t.Parallel()

	s := openTempStore(t)
	if err := s.RecordMatch(context.Background(), Match{Winner: "left"}); err == nil {
		t.Fatal("expected missing session error")
	}
	m := match("x", time.Now())
	m.EndedAt = m.StartedAt.Add(-time.Second)
	if err := s.RecordMatch(context.Background(), m); err == nil {
		t.Fatal("expected end-before-start error")
	}
}

func TestOpenPicksBackend(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatal("expected empty dsn error")
	}
	s, err := Open(context.Background(), "sqlite://:memory:")
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLite); !ok {
		t.Fatalf("store = %T, want *SQLite", s)
	}
	if err := s.RecordMatch(context.Background(), match("mem", time.Now())); err != nil {
		t.Fatalf("record: %v", err)
	}
}

type fakeStore struct {
	mu      sync.Mutex
	matches []Match
	got     chan struct{}
}

func (f *fakeStore) RecordMatch(_ context.Context, m Match) error {
	f.mu.Lock()
	f.matches = append(f.matches, m)
	f.mu.Unlock()
	f.got <- struct{}{}
	return nil
}

func (f *fakeStore) RecentMatches(context.Context, int) ([]Match, error) { return nil, nil }
func (f *fakeStore) Close() error                                        { return nil }

func TestRecorderWritesInBackground(t *testing.T) {
	fs := &fakeStore{got: make(chan struct{}, 4)}
	r := NewRecorder(fs, 4, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	if !r.Enqueue(match("one", time.Now())) {
		t.Fatal("enqueue refused")
	}
	select {
	case <-fs.got:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for write")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRecorderDropsWhenFull(t *testing.T) {
	fs := &fakeStore{got: make(chan struct{}, 4)}
	r := NewRecorder(fs, 1, log.New(io.Discard, "", 0))

	if !r.Enqueue(match("a", time.Now())) {
		t.Fatal("first enqueue refused")
	}
	if r.Enqueue(match("b", time.Now())) {
		t.Fatal("second enqueue should be dropped with no writer running")
	}

	// A cancelled Run still flushes what is queued.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(fs.matches) != 1 || fs.matches[0].Session != "a" {
		t.Fatalf("flushed = %+v", fs.matches)
	}
}

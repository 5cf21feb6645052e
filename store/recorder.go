package store

import (
	"context"
	"log"
	"os"
	"time"
)

const writeTimeout = 5 * time.Second

// Recorder writes matches on its own goroutine so the frame loop never waits on the database.
type Recorder struct {
	store  Store
	queue  chan Match
	logger *log.Logger
}

func NewRecorder(s Store, size int, logger *log.Logger) *Recorder {
	if size <= 0 {
		size = 16
	}
	if logger == nil {
		logger = log.New(os.Stderr, "store: ", log.LstdFlags)
	}
	return &Recorder{store: s, queue: make(chan Match, size), logger: logger}
}

// Enqueue hands m to the writer. It reports false and drops m when the queue is full.
func (r *Recorder) Enqueue(m Match) bool {
	select {
	case r.queue <- m:
		return true
	default:
		r.logger.Printf("queue full, dropping match %s", m.Session)
		return false
	}
}

// Run writes queued matches until ctx is done, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case m := <-r.queue:
			r.write(ctx, m)
		case <-ctx.Done():
			for {
				select {
				case m := <-r.queue:
					r.write(context.Background(), m)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) write(ctx context.Context, m Match) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := r.store.RecordMatch(ctx, m); err != nil {
		r.logger.Printf("record match %s: %v", m.Session, err)
	}
}

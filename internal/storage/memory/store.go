// Package memory is the in-memory implementation of the run store, used in
// tests and when persistence is disabled.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/contextgate/contextgate/internal/storage"
)

// Store keeps runs in memory. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*storage.RunRecord
}

var _ storage.RunStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{runs: make(map[string]*storage.RunRecord)}
}

func (s *Store) SaveRun(ctx context.Context, rec *storage.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rec.ID] = rec
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*storage.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.runs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec, nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]*storage.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]*storage.RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})

	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *Store) DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, rec := range s.runs {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.runs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) Close() error {
	return nil
}

package history

import (
	"sync"
	"time"

	"luxctl/internal/model"
)

// Store keeps a bounded in-memory tail of readings and action events so the
// API can serve recent data even when persistence is disabled or down.
type Store struct {
	mu       sync.RWMutex
	readings []model.Reading
	actions  []model.ActionEvent
	limit    int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 2000
	}
	return &Store{limit: limit}
}

func (s *Store) AddReading(r model.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.readings) < s.limit {
		s.readings = append(s.readings, r)
		return
	}
	copy(s.readings, s.readings[1:])
	s.readings[len(s.readings)-1] = r
}

func (s *Store) AddAction(a model.ActionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.actions) < s.limit {
		s.actions = append(s.actions, a)
		return
	}
	copy(s.actions, s.actions[1:])
	s.actions[len(s.actions)-1] = a
}

// Readings returns entries at or after since, oldest first, capped at limit
// newest entries.
func (s *Store) Readings(since time.Time, limit int) []model.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Reading, 0)
	for _, r := range s.readings {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	return tail(out, limit)
}

func (s *Store) Actions(since time.Time, limit int) []model.ActionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ActionEvent, 0)
	for _, a := range s.actions {
		if !a.Timestamp.Before(since) {
			out = append(out, a)
		}
	}
	return tail(out, limit)
}

func tail[T any](in []T, limit int) []T {
	if limit <= 0 || limit >= len(in) {
		return in
	}
	return in[len(in)-limit:]
}

// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"sync"

	"github.com/aibiliti/kbdash/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for testing, demos, and deployments that do not need the audit
// trail to survive a restart.
type Repository struct {
	mu     sync.RWMutex
	events []storage.Event
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Append(event storage.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Repository) Recent(limit int) ([]storage.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 {
		return nil, nil
	}
	n := min(limit, len(r.events))
	out := make([]storage.Event, 0, n)
	for i := len(r.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.events[i])
	}
	return out, nil
}

// Package storage provides the storage abstraction for the authentication
// audit trail.
package storage

import "time"

// DefaultLimit is used by callers that do not pick their own page size.
const DefaultLimit = 50

// Event is one recorded authentication event.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Subject    string    `json:"subject,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Repository is an append-only event log.
type Repository interface {
	// Append stores event after all previously appended events.
	Append(event Event) error
	// Recent returns at most limit events, newest first. A non-positive
	// limit returns nothing.
	Recent(limit int) ([]Event, error)
}

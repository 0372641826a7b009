// Package sessionstore persists interactive dashboard sessions. Two backends
// are provided: an in-memory map for single-instance development use and a
// Redis-backed store for deployments that need sessions to survive restarts.
package sessionstore

import (
	"context"
	"errors"
)

// Store is the persistence interface the dashboard server works against.
type Store interface {
	// Get retrieves a session by ID. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, id string) (*Session, error)

	// Put persists a session, replacing any existing session with the same ID.
	Put(ctx context.Context, session *Session) error

	// List returns every stored session, newest first.
	List(ctx context.Context) ([]*Session, error)

	// Delete removes a session. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, id string) error

	// Fork copies an existing session under a new ID and returns the copy.
	// The source session is left unchanged.
	Fork(ctx context.Context, sourceID, newID string) (*Session, error)
}

// ErrNotFound is returned when a session does not exist in the store.
var ErrNotFound = errors.New("session not found")

// ErrInvalidID is returned when an empty or malformed session ID is provided.
var ErrInvalidID = errors.New("invalid session ID")

// ErrInvalidSession is returned when a nil or incomplete session is stored.
var ErrInvalidSession = errors.New("invalid session")

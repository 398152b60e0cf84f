package session

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL bounds the lifetime of a browser session. Every Put refreshes the
// deadline.
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned by Get for an unknown or expired session id.
var ErrNotFound = errors.New("session not found")

// Store persists per-browser session state keyed by session id. Implementations
// serialize individual Put calls per key, but concurrent Puts for the same id
// are last-write-wins: no merge of conversation state is attempted.
type Store interface {
	// Get returns the stored state document for a session id.
	Get(ctx context.Context, sid string) ([]byte, error)

	// Put stores the state document and refreshes the session's TTL.
	Put(ctx context.Context, sid string, state []byte) error

	// Delete removes a session. Deleting an absent session is not an error.
	Delete(ctx context.Context, sid string) error

	// DeleteExpired removes sessions past their deadline and reports how many.
	DeleteExpired(ctx context.Context) (int, error)

	// Len counts live sessions.
	Len(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}

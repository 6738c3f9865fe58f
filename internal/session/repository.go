package session

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the session repository API
type Repository interface {
	// Get retrieves a session by its ID
	Get(ctx context.Context, id uuid.UUID) (*Session, error)

	// Latest retrieves the most recently created session that did not expire yet
	Latest(ctx context.Context) (*Session, error)

	// Put creates a session or replaces the one stored under the same ID
	Put(ctx context.Context, ses *Session) error

	// Delete deletes a session
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteExpired deletes all expired sessions and returns their amount
	DeleteExpired(ctx context.Context) (int, error)
}

package cache

import (
	"context"

	"github.com/google/uuid"
	"github.com/skybi/session-portal/internal/hashmap"
	"github.com/skybi/session-portal/internal/session"
)

// SessionRepository implements the session.Repository interface by caching the results of another implementation
type SessionRepository struct {
	repo  session.Repository
	cache *hashmap.ExpiringMap[uuid.UUID, *session.Session]
}

var _ session.Repository = (*SessionRepository)(nil)

// Get retrieves a session by its ID, preferring the cached version
func (repo *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	if cached, ok := repo.cache.Lookup(id); ok {
		return copySession(cached), nil
	}
	ses, err := repo.repo.Get(ctx, id)
	if err != nil || ses == nil {
		return ses, err
	}
	repo.cache.Set(id, copySession(ses))
	return ses, nil
}

// Latest retrieves the most recently created session from the underlying repository and caches it
func (repo *SessionRepository) Latest(ctx context.Context) (*session.Session, error) {
	ses, err := repo.repo.Latest(ctx)
	if err != nil || ses == nil {
		return ses, err
	}
	repo.cache.Set(ses.ID, copySession(ses))
	return ses, nil
}

// Put writes the session through to the underlying repository
func (repo *SessionRepository) Put(ctx context.Context, ses *session.Session) error {
	if err := repo.repo.Put(ctx, ses); err != nil {
		repo.cache.Unset(ses.ID)
		return err
	}
	repo.cache.Set(ses.ID, copySession(ses))
	return nil
}

// Delete deletes the session from the underlying repository and the cache
func (repo *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	repo.cache.Unset(id)
	return repo.repo.Delete(ctx, id)
}

// DeleteExpired deletes all expired sessions of the underlying repository and invalidates the cache
func (repo *SessionRepository) DeleteExpired(ctx context.Context) (int, error) {
	n, err := repo.repo.DeleteExpired(ctx)
	if n > 0 {
		repo.cache.Clear()
	}
	return n, err
}

func copySession(ses *session.Session) *session.Session {
	copied := *ses
	copied.Claims = ses.Claims.Clone()
	return &copied
}

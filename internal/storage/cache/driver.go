package cache

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/skybi/session-portal/internal/hashmap"
	"github.com/skybi/session-portal/internal/session"
	"github.com/skybi/session-portal/internal/storage"
)

// Driver represents a storage driver implementation that wraps another one in order to implement in-memory caching
type Driver struct {
	underlying storage.Driver
	lifetime   time.Duration
	sessions   *SessionRepository
}

var _ storage.Driver = (*Driver)(nil)

// New returns a new caching storage driver keeping entries for the given lifetime
func New(underlying storage.Driver, lifetime time.Duration) *Driver {
	return &Driver{
		underlying: underlying,
		lifetime:   lifetime,
	}
}

// Initialize initializes the caching repositories.
// The underlying driver has to be initialized already.
func (driver *Driver) Initialize(_ context.Context) error {
	sessionCache := hashmap.NewExpiring[uuid.UUID, *session.Session](driver.lifetime)
	sessionCache.ScheduleCleanupTask(10 * time.Second)
	driver.sessions = &SessionRepository{
		repo:  driver.underlying.Sessions(),
		cache: sessionCache,
	}
	return nil
}

// Sessions provides the caching session repository implementation
func (driver *Driver) Sessions() session.Repository {
	return driver.sessions
}

// Close closes the caching repositories and disposes their instances.
// The underlying driver is left open.
func (driver *Driver) Close() {
	if driver.sessions != nil {
		driver.sessions.cache.StopCleanupTask()
		driver.sessions = nil
	}
}

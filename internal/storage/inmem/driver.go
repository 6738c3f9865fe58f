package inmem

import (
	"context"

	"github.com/hashicorp/go-memdb"
	"github.com/skybi/session-portal/internal/session"
	"github.com/skybi/session-portal/internal/storage"
)

var dbSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tableSessions: {
			Name: tableSessions,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:         "id",
					Unique:       true,
					AllowMissing: false,
					Indexer:      &memdb.StringFieldIndex{Field: "ID"},
				},
				"subject": {
					Name:         "subject",
					Unique:       false,
					AllowMissing: true,
					Indexer:      &memdb.StringFieldIndex{Field: "Subject"},
				},
				"expires": {
					Name:         "expires",
					Unique:       false,
					AllowMissing: false,
					Indexer:      &memdb.IntFieldIndex{Field: "Expires"},
				},
				"created": {
					Name:         "created",
					Unique:       false,
					AllowMissing: false,
					Indexer:      &memdb.IntFieldIndex{Field: "Created"},
				},
			},
		},
	},
}

// Driver represents the in-memory storage driver built using hashicorp/go-memdb
type Driver struct {
	db       *memdb.MemDB
	sessions *SessionRepository
}

var _ storage.Driver = (*Driver)(nil)

// New creates a new empty in-memory storage driver.
// Use Initialize to create the underlying database.
func New() *Driver {
	return &Driver{}
}

// Initialize creates the in-memory database and initializes the repository implementations
func (driver *Driver) Initialize(_ context.Context) error {
	db, err := memdb.NewMemDB(dbSchema)
	if err != nil {
		return err
	}
	driver.db = db
	driver.sessions = &SessionRepository{db: db}
	return nil
}

// Sessions provides the in-memory session repository implementation
func (driver *Driver) Sessions() session.Repository {
	return driver.sessions
}

// Close discards the database and its repository implementations
func (driver *Driver) Close() {
	driver.sessions = nil
	driver.db = nil
}

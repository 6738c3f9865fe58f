package inmem

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/skybi/session-portal/internal/session"
)

const tableSessions = "sessions"

// record is the indexed representation of a session inside the memdb table
type record struct {
	ID      string
	Subject string
	Expires int64
	Created int64
	Session *session.Session
}

func newRecord(ses *session.Session) *record {
	expires := int64(math.MaxInt64)
	if !ses.Expires.IsZero() {
		expires = ses.Expires.UnixNano()
	}
	copied := *ses
	return &record{
		ID:      ses.ID.String(),
		Subject: ses.Subject,
		Expires: expires,
		Created: ses.Created.UnixNano(),
		Session: &copied,
	}
}

// output returns a copy of the stored session so that callers cannot mutate the stored object
func (rec *record) output() *session.Session {
	copied := *rec.Session
	copied.Claims = rec.Session.Claims.Clone()
	return &copied
}

// SessionRepository implements the session.Repository interface using go-memdb
type SessionRepository struct {
	db *memdb.MemDB
}

var _ session.Repository = (*SessionRepository)(nil)

// Get retrieves a session by its ID
func (repo *SessionRepository) Get(_ context.Context, id uuid.UUID) (*session.Session, error) {
	txn := repo.db.Txn(false)
	obj, err := txn.First(tableSessions, "id", id.String())
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, nil
	}
	return obj.(*record).output(), nil
}

// Latest retrieves the most recently created session that did not expire yet
func (repo *SessionRepository) Latest(_ context.Context) (*session.Session, error) {
	txn := repo.db.Txn(false)
	it, err := txn.GetReverse(tableSessions, "created")
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixNano()
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rec := obj.(*record)
		if rec.Expires > now {
			return rec.output(), nil
		}
	}
	return nil, nil
}

// Put creates a session or replaces the one stored under the same ID
func (repo *SessionRepository) Put(_ context.Context, ses *session.Session) error {
	txn := repo.db.Txn(true)
	defer txn.Abort()
	if err := txn.Insert(tableSessions, newRecord(ses)); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// Delete deletes a session
func (repo *SessionRepository) Delete(_ context.Context, id uuid.UUID) error {
	txn := repo.db.Txn(true)
	defer txn.Abort()
	if _, err := txn.DeleteAll(tableSessions, "id", id.String()); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

// DeleteExpired deletes all expired sessions and returns their amount
func (repo *SessionRepository) DeleteExpired(_ context.Context) (int, error) {
	txn := repo.db.Txn(true)
	defer txn.Abort()

	it, err := txn.LowerBound(tableSessions, "expires", int64(math.MinInt64))
	if err != nil {
		return 0, err
	}

	now := time.Now().UnixNano()
	expired := []*record{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		rec := obj.(*record)
		if rec.Expires > now {
			break
		}
		expired = append(expired, rec)
	}
	for _, rec := range expired {
		if err := txn.Delete(tableSessions, rec); err != nil {
			return 0, err
		}
	}

	txn.Commit()
	return len(expired), nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/skybi/session-portal/internal/identity"
	"github.com/skybi/session-portal/internal/session"
)

var sessionColumns = []string{
	"session_id",
	"subject",
	"access_token",
	"refresh_token",
	"id_token",
	"access_expiry",
	"expires",
	"claims",
	"created",
}

// SessionRepository implements the session.Repository interface using PostgreSQL
type SessionRepository struct {
	db *pgxpool.Pool
}

var _ session.Repository = (*SessionRepository)(nil)

// Get retrieves a session by its ID
func (repo *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*session.Session, error) {
	query := squirrel.Select(sessionColumns...).From("sessions").Where(squirrel.Eq{"session_id": id})
	sql, vals, err := query.PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return nil, err
	}
	return repo.scanOne(ctx, sql, vals...)
}

// Latest retrieves the most recently created session that did not expire yet
func (repo *SessionRepository) Latest(ctx context.Context) (*session.Session, error) {
	query := squirrel.Select(sessionColumns...).
		From("sessions").
		Where(squirrel.Or{
			squirrel.Eq{"expires": nil},
			squirrel.Gt{"expires": time.Now()},
		}).
		OrderBy("created DESC").
		Limit(1)
	sql, vals, err := query.PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return nil, err
	}
	return repo.scanOne(ctx, sql, vals...)
}

// Put creates a session or replaces the one stored under the same ID
func (repo *SessionRepository) Put(ctx context.Context, ses *session.Session) error {
	claims, err := json.Marshal(ses.Claims)
	if err != nil {
		return err
	}
	if ses.Claims == nil {
		claims = []byte("{}")
	}

	query := squirrel.Insert("sessions").
		Columns(sessionColumns...).
		Values(
			ses.ID,
			ses.Subject,
			ses.AccessToken,
			ses.RefreshToken,
			ses.IDToken,
			nullableTime(ses.AccessExpiry),
			nullableTime(ses.Expires),
			string(claims),
			ses.Created,
		).
		Suffix(`ON CONFLICT (session_id) DO UPDATE SET
			subject = EXCLUDED.subject,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			id_token = EXCLUDED.id_token,
			access_expiry = EXCLUDED.access_expiry,
			expires = EXCLUDED.expires,
			claims = EXCLUDED.claims`)
	sql, vals, err := query.PlaceholderFormat(squirrel.Dollar).ToSql()
	if err != nil {
		return err
	}

	_, err = repo.db.Exec(ctx, sql, vals...)
	return err
}

// Delete deletes a session
func (repo *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := repo.db.Exec(ctx, "DELETE FROM sessions WHERE session_id = $1", id)
	return err
}

// DeleteExpired deletes all expired sessions and returns their amount
func (repo *SessionRepository) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := repo.db.Exec(ctx, "DELETE FROM sessions WHERE expires IS NOT NULL AND expires <= $1", time.Now())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (repo *SessionRepository) scanOne(ctx context.Context, sql string, vals ...any) (*session.Session, error) {
	ses := new(session.Session)
	var accessExpiry, expires *time.Time
	var claims []byte
	err := repo.db.QueryRow(ctx, sql, vals...).Scan(
		&ses.ID,
		&ses.Subject,
		&ses.AccessToken,
		&ses.RefreshToken,
		&ses.IDToken,
		&accessExpiry,
		&expires,
		&claims,
		&ses.Created,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if accessExpiry != nil {
		ses.AccessExpiry = *accessExpiry
	}
	if expires != nil {
		ses.Expires = *expires
	}
	parsed := identity.Claims{}
	if err := json.Unmarshal(claims, &parsed); err != nil {
		return nil, err
	}
	ses.Claims = parsed

	return ses, nil
}

func nullableTime(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	return &value
}

package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/skybi/session-portal/internal/identity"
)

// Session represents the token set the identity provider issued for the signed-in user.
// A session is never mutated once it got stored; every refresh stores a new one under the same ID.
type Session struct {
	ID           uuid.UUID
	Subject      string
	AccessToken  string
	RefreshToken string
	IDToken      string
	AccessExpiry time.Time
	Expires      time.Time
	Claims       identity.Claims
	Created      time.Time
}

// ExpiresWithin reports whether the access token expires within the given duration.
// A zero access expiry is treated as never expiring.
func (ses *Session) ExpiresWithin(duration time.Duration) bool {
	if ses.AccessExpiry.IsZero() {
		return false
	}
	return time.Now().Add(duration).After(ses.AccessExpiry)
}

// Expired reports whether the whole session expired, i.e. it can neither be used nor refreshed anymore
func (ses *Session) Expired() bool {
	return !ses.Expires.IsZero() && !time.Now().Before(ses.Expires)
}

// Refreshable reports whether the session holds a refresh token that may be exchanged for a new access token
func (ses *Session) Refreshable() bool {
	return ses.RefreshToken != "" && !ses.Expired()
}

// Refreshed returns a copy of the session carrying the given token set.
// Empty refresh or ID tokens keep the old values as providers may omit them on refresh.
func (ses *Session) Refreshed(accessToken, refreshToken, idToken string, accessExpiry, expires time.Time, claims identity.Claims) *Session {
	next := *ses
	next.AccessToken = accessToken
	next.AccessExpiry = accessExpiry
	if refreshToken != "" {
		next.RefreshToken = refreshToken
	}
	if idToken != "" {
		next.IDToken = idToken
	}
	if !expires.IsZero() {
		next.Expires = expires
	}
	if claims != nil {
		next.Claims = claims
	}
	return &next
}

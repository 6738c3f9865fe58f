package oidcclient

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/skybi/session-portal/internal/identity"
	"github.com/skybi/session-portal/internal/session"
	"golang.org/x/oauth2"
)

// UpdateToken refreshes the access token if it expires within the given minimum validity.
// It reports whether a refresh took place; identity.ForceRefresh always refreshes.
func (client *Client) UpdateToken(ctx context.Context, minValidity time.Duration) (bool, error) {
	client.refreshMtx.Lock()
	defer client.refreshMtx.Unlock()

	ses := client.currentSession()
	if ses == nil {
		return false, identity.ErrNotAuthenticated
	}
	if minValidity >= 0 && !ses.ExpiresWithin(minValidity) {
		return false, nil
	}

	refreshed, err := client.refresh(ctx, ses)
	if err != nil {
		return false, err
	}
	client.setCurrent(refreshed)
	log.Debug().Str("session", refreshed.ID.String()).Time("access_expiry", refreshed.AccessExpiry).Msg("refreshed the access token")
	return true, nil
}

// refresh exchanges the session's refresh token for a new token set and stores the resulting session
func (client *Client) refresh(ctx context.Context, ses *session.Session) (*session.Session, error) {
	if !ses.Refreshable() {
		return nil, fmt.Errorf("%w: session is not refreshable", identity.ErrRefresh)
	}

	// An empty access token forces the token source to use the refresh token
	source := client.oauth2Config.TokenSource(client.context(ctx), &oauth2.Token{
		RefreshToken: ses.RefreshToken,
	})
	token, err := source.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", identity.ErrRefresh, err)
	}

	// Providers may omit the ID token on refresh; verify it if they don't
	var idToken *oidc.IDToken
	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken != "" {
		idToken, err = client.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid ID token: %w", identity.ErrRefresh, err)
		}
	}

	claims, err := parseClaims(token.AccessToken, idToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", identity.ErrRefresh, err)
	}
	if claims == nil {
		claims = ses.Claims
	}
	refreshed := ses.Refreshed(
		token.AccessToken,
		token.RefreshToken,
		rawIDToken,
		accessExpiry(token, claims),
		refreshExpiry(token),
		claims,
	)
	if err := client.sessions.Put(ctx, refreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

func newSession(token *oauth2.Token, idToken *oidc.IDToken) (*session.Session, error) {
	claims, err := parseClaims(token.AccessToken, idToken)
	if err != nil {
		return nil, err
	}
	rawIDToken, _ := token.Extra("id_token").(string)
	return &session.Session{
		ID:           uuid.New(),
		Subject:      idToken.Subject,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      rawIDToken,
		AccessExpiry: accessExpiry(token, claims),
		Expires:      refreshExpiry(token),
		Claims:       claims,
		Created:      time.Now(),
	}, nil
}

// parseClaims extracts the claims of the access token without verifying it, just like a public client would.
// Opaque access tokens fall back to the claims of the verified ID token.
func parseClaims(accessToken string, idToken *oidc.IDToken) (identity.Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err == nil {
		return identity.Claims(claims), nil
	}
	if idToken == nil {
		return nil, nil
	}
	parsed := identity.Claims{}
	if err := idToken.Claims(&parsed); err != nil {
		return nil, err
	}
	return parsed, nil
}

func accessExpiry(token *oauth2.Token, claims identity.Claims) time.Time {
	if !token.Expiry.IsZero() {
		return token.Expiry
	}
	if exp, err := jwt.MapClaims(claims).GetExpirationTime(); err == nil && exp != nil {
		return exp.Time
	}
	return time.Time{}
}

// refreshExpiry reads Keycloak's 'refresh_expires_in' extension; zero means the refresh token does not expire
func refreshExpiry(token *oauth2.Token) time.Time {
	seconds, ok := token.Extra("refresh_expires_in").(float64)
	if !ok || seconds <= 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(seconds) * time.Second)
}

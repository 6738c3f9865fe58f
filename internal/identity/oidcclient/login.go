package oidcclient

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog/log"
	"github.com/skybi/session-portal/internal/identity"
	"github.com/skybi/session-portal/internal/random"
	"golang.org/x/oauth2"
)

var (
	stateLength = 16
	nonceLength = 16
)

// loginFlow holds the secrets of a login flow that has been started but not completed yet
type loginFlow struct {
	Nonce    string
	Verifier string
}

// Callback represents the parameters the provider redirected the user agent back with
type Callback struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
}

// Login starts a new login flow and sends the user to the provider's authorization endpoint.
// The flow is completed by CompleteLogin once the provider redirected the user back.
func (client *Client) Login(_ context.Context) error {
	if !client.discovered() {
		return fmt.Errorf("%w: provider not discovered", identity.ErrLoginFailed)
	}

	// Create the login flow secrets
	state, err := random.String(stateLength, random.CharsetAlphanumeric)
	if err != nil {
		return err
	}
	nonce, err := random.String(nonceLength, random.CharsetAlphanumeric)
	if err != nil {
		return err
	}
	flow := &loginFlow{
		Nonce: nonce,
	}
	options := []oauth2.AuthCodeOption{oidc.Nonce(nonce)}
	client.mtx.RLock()
	pkce := client.pkce
	client.mtx.RUnlock()
	if pkce {
		flow.Verifier = oauth2.GenerateVerifier()
		options = append(options, oauth2.S256ChallengeOption(flow.Verifier))
	}
	client.flows.Set(state, flow)

	// Drop results of earlier flows nobody waited for
	select {
	case <-client.loginResults:
	default:
	}

	// Send the user to the authentication endpoint of the provider
	client.open(client.oauth2Config.AuthCodeURL(state, options...), "sign in")
	return nil
}

// CompleteLogin completes the login flow identified by the callback's state.
// Callbacks of unknown or expired flows are rejected without affecting AwaitLogin.
func (client *Client) CompleteLogin(ctx context.Context, callback Callback) error {
	flow, ok := client.flows.Take(callback.State)
	if !ok {
		return fmt.Errorf("%w: unknown or expired login state", identity.ErrLoginFailed)
	}

	err := client.completeLogin(ctx, flow, callback)
	if err != nil {
		log.Warn().Err(err).Msg("a login flow failed")
	}
	select {
	case client.loginResults <- err:
	default:
	}
	return err
}

func (client *Client) completeLogin(ctx context.Context, flow *loginFlow, callback Callback) error {
	if callback.Error != "" {
		return fmt.Errorf("%w: provider returned %s: %s", identity.ErrLoginFailed, callback.Error, callback.ErrorDescription)
	}
	if callback.Code == "" {
		return fmt.Errorf("%w: missing authorization code", identity.ErrLoginFailed)
	}

	// Retrieve the OAuth2 token set and extract and verify the ID token + nonce
	var options []oauth2.AuthCodeOption
	if flow.Verifier != "" {
		options = append(options, oauth2.VerifierOption(flow.Verifier))
	}
	token, err := client.oauth2Config.Exchange(client.context(ctx), callback.Code, options...)
	if err != nil {
		return fmt.Errorf("%w: code exchange: %w", identity.ErrLoginFailed, err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return fmt.Errorf("%w: no 'id_token' field in the token response", identity.ErrLoginFailed)
	}
	idToken, err := client.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return fmt.Errorf("%w: invalid ID token: %w", identity.ErrLoginFailed, err)
	}
	if idToken.Nonce != flow.Nonce {
		return fmt.Errorf("%w: nonces do not match", identity.ErrLoginFailed)
	}

	// Store the new session
	ses, err := newSession(token, idToken)
	if err != nil {
		return fmt.Errorf("%w: %w", identity.ErrLoginFailed, err)
	}
	if err := client.sessions.Put(ctx, ses); err != nil {
		return err
	}
	client.setCurrent(ses)
	log.Info().Str("subject", ses.Subject).Str("username", ses.Claims.PreferredUsername()).Msg("signed in")
	return nil
}

// AwaitLogin blocks until a login flow has been completed, successfully or not, or the context is done
func (client *Client) AwaitLogin(ctx context.Context) error {
	select {
	case err := <-client.loginResults:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

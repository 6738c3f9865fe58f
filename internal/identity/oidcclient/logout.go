package oidcclient

import (
	"context"
	"net/url"

	"github.com/rs/zerolog/log"
	"github.com/skybi/session-portal/internal/identity"
)

// Logout terminates the current session locally and at the provider.
// The provider's end session endpoint is opened in the browser if the provider announces one.
func (client *Client) Logout(ctx context.Context) error {
	client.refreshMtx.Lock()
	defer client.refreshMtx.Unlock()

	ses := client.currentSession()
	if ses == nil {
		return identity.ErrNotAuthenticated
	}
	client.setCurrent(nil)

	if err := client.sessions.Delete(ctx, ses.ID); err != nil {
		return err
	}
	log.Info().Str("subject", ses.Subject).Msg("signed out")

	if client.endSession == "" {
		log.Warn().Msg("the provider does not announce an end session endpoint; only the local session got terminated")
		return nil
	}
	target, err := url.Parse(client.endSession)
	if err != nil {
		return err
	}
	query := target.Query()
	query.Set("client_id", client.config.ClientID)
	if ses.IDToken != "" {
		query.Set("id_token_hint", ses.IDToken)
	}
	if client.config.PostLogoutRedirectURL != "" {
		query.Set("post_logout_redirect_uri", client.config.PostLogoutRedirectURL)
	}
	target.RawQuery = query.Encode()
	client.open(target.String(), "sign out at the identity provider")
	return nil
}

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/skybi/session-portal/internal/identity"
)

// Refresh asks the identity client to refresh the token if it expires within minValidity and reports whether a
// refresh took place. Concurrent calls share a single refresh. A failed refresh triggers exactly one login and moves
// the supervisor into StateReauthenticating.
func (supervisor *Supervisor) Refresh(ctx context.Context, minValidity time.Duration) (bool, error) {
	result, err, _ := supervisor.refreshGroup.Do("refresh", func() (any, error) {
		return supervisor.refresh(ctx, minValidity)
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

func (supervisor *Supervisor) refresh(ctx context.Context, minValidity time.Duration) (bool, error) {
	supervisor.mtx.Lock()
	switch {
	case supervisor.terminated || supervisor.state.Terminal():
		supervisor.mtx.Unlock()
		return false, ErrTerminated
	case supervisor.state != StateAuthenticated:
		supervisor.mtx.Unlock()
		return false, identity.ErrNotAuthenticated
	}
	supervisor.state = StateRefreshing
	supervisor.mtx.Unlock()

	refreshed, err := supervisor.client.UpdateToken(ctx, minValidity)
	if err != nil {
		log.Warn().Err(err).Msg("could not refresh the access token; re-authenticating")
		loginErr := supervisor.terminate(StateReauthenticating, func() error {
			return supervisor.client.Login(context.Background())
		})
		if loginErr != nil && !errors.Is(loginErr, ErrTerminated) {
			log.Error().Err(loginErr).Msg("could not start the login")
		}
		return false, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	supervisor.mtx.Lock()
	if supervisor.state == StateRefreshing {
		supervisor.state = StateAuthenticated
	}
	supervisor.mtx.Unlock()

	if refreshed {
		log.Debug().Msg("refreshed the access token")
	}
	return refreshed, nil
}

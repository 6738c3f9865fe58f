package supervisor

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/skybi/session-portal/internal/identity"
)

// LoginClient represents an identity client whose logins complete asynchronously
type LoginClient interface {
	IdentityClient

	// AwaitLogin blocks until a started login flow completed
	AwaitLogin(ctx context.Context) error
}

// Mounter represents the presentation layer a bootstrapped supervisor gets handed to
type Mounter interface {
	Mount(supervisor *Supervisor)
	Unmount()
}

// Runner repeatedly creates supervisor instances, one per page load: every terminal state (logout, failed refresh)
// or redirect to the login is followed by a fresh instance once the login completed.
type Runner struct {
	Client      LoginClient
	Mounter     Mounter
	InitOptions identity.InitOptions
	Options     Options
}

// Run runs the page load loop until the context is done.
// Initialization failures end the loop with an error wrapping ErrInitialization unless the context is done already.
func (runner *Runner) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		supervisor := New(runner.Client, runner.Options)
		_, err := supervisor.Bootstrap(ctx, runner.InitOptions)
		switch {
		case errors.Is(err, ErrRedirected):
			runner.awaitLogin(ctx)
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		// Hand control to the presentation layer until the instance ended
		runner.Mounter.Mount(supervisor)
		select {
		case <-supervisor.Done():
		case <-ctx.Done():
		}
		runner.Mounter.Unmount()
		state := supervisor.State()
		supervisor.Close()
		if ctx.Err() != nil {
			break
		}

		log.Info().Stringer("state", state).Msg("the session ended; reloading")
		if state == StateReauthenticating {
			runner.awaitLogin(ctx)
		}
	}
	return nil
}

func (runner *Runner) awaitLogin(ctx context.Context) {
	log.Info().Msg("waiting for the login to complete...")
	if err := runner.Client.AwaitLogin(ctx); err != nil && ctx.Err() == nil {
		log.Warn().Err(err).Msg("the login did not complete; starting over")
	}
}

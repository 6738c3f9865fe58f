package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/skybi/session-portal/internal/identity"
	"github.com/skybi/session-portal/internal/task"
	"golang.org/x/sync/singleflight"
)

// IdentityClient represents the identity provider client the supervisor delegates all protocol work to
type IdentityClient interface {
	// Init initializes the client and reports whether an authenticated session exists
	Init(ctx context.Context, options identity.InitOptions) (bool, error)

	// Login sends the user to the provider's login; the calling supervisor instance does not continue afterwards
	Login(ctx context.Context) error

	// Logout terminates the session at the provider
	Logout(ctx context.Context) error

	// Token returns the current raw access token
	Token() string

	// Claims returns the parsed claims of the current access token
	Claims() identity.Claims

	// UpdateToken refreshes the token if it expires within minValidity and reports whether it did so
	UpdateToken(ctx context.Context, minValidity time.Duration) (bool, error)
}

// RetryPolicy defines how an API call reacts to a rejected access token
type RetryPolicy string

const (
	// RetryNone surfaces every failed API call as is
	RetryNone RetryPolicy = "none"

	// RetryRefreshOnce forces one token refresh and retries the call once if the API answered 401
	RetryRefreshOnce RetryPolicy = "refresh-once"
)

// Options represents the tuning options of a supervisor
type Options struct {
	RefreshInterval time.Duration
	MinValidity     time.Duration
	RetryPolicy     RetryPolicy
	HTTPClient      *http.Client
}

// DefaultOptions returns the default supervisor options
func DefaultOptions() Options {
	return Options{
		RefreshInterval: 10 * time.Second,
		MinValidity:     30 * time.Second,
		RetryPolicy:     RetryNone,
	}
}

// Session represents a read-only snapshot of the supervised session.
// Authenticated is never true while Token is empty.
type Session struct {
	Authenticated bool
	Token         string
	Claims        identity.Claims
}

// Supervisor owns the authentication lifecycle of a single page load: it bootstraps the session, keeps the access
// token fresh and decides between refresh and re-authentication.
type Supervisor struct {
	client  IdentityClient
	options Options

	mtx         sync.Mutex
	state       State
	terminated  bool
	refreshTask *task.RepeatingTask

	refreshGroup  singleflight.Group
	terminateOnce sync.Once
	done          chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new supervisor using the given identity client
func New(client IdentityClient, options Options) *Supervisor {
	defaults := DefaultOptions()
	if options.RefreshInterval <= 0 {
		options.RefreshInterval = defaults.RefreshInterval
	}
	if options.MinValidity <= 0 {
		options.MinValidity = defaults.MinValidity
	}
	if options.RetryPolicy == "" {
		options.RetryPolicy = defaults.RetryPolicy
	}
	if options.HTTPClient == nil {
		options.HTTPClient = http.DefaultClient
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		client:  client,
		options: options,
		state:   StateUninitialized,
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Bootstrap initializes the identity client and makes sure an authenticated session exists.
// If there is none, exactly one login is triggered and ErrRedirected is returned; the instance is done afterwards.
// On success the refresh loop is started.
func (supervisor *Supervisor) Bootstrap(ctx context.Context, options identity.InitOptions) (Session, error) {
	supervisor.mtx.Lock()
	if supervisor.state != StateUninitialized {
		supervisor.mtx.Unlock()
		return Session{}, ErrBootstrapped
	}
	supervisor.state = StateAuthenticating
	supervisor.mtx.Unlock()

	// Initialize the identity client
	authenticated, err := supervisor.client.Init(ctx, options)
	if err != nil {
		log.Error().Err(err).Msg("could not initialize the identity client")
		supervisor.terminate(StateAuthenticating, nil)
		return Session{}, fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	// Redirect to the login if no usable session exists
	if !authenticated || supervisor.client.Token() == "" {
		err := supervisor.terminate(StateAuthenticating, func() error {
			return supervisor.client.Login(ctx)
		})
		if errors.Is(err, ErrTerminated) {
			return Session{}, err
		}
		if err != nil {
			log.Error().Err(err).Msg("could not start the login")
			return Session{}, fmt.Errorf("%w: %w", ErrInitialization, err)
		}
		return Session{}, ErrRedirected
	}

	// The instance may have been closed while the client was initializing
	supervisor.mtx.Lock()
	if supervisor.terminated || supervisor.state != StateAuthenticating {
		supervisor.mtx.Unlock()
		return Session{}, ErrTerminated
	}
	supervisor.state = StateAuthenticated
	supervisor.mtx.Unlock()
	supervisor.StartRefreshLoop(supervisor.options.RefreshInterval, supervisor.options.MinValidity)

	log.Info().Str("username", supervisor.client.Claims().PreferredUsername()).Msg("session bootstrapped")
	return supervisor.Session(), nil
}

// StartRefreshLoop schedules the periodic token freshness check.
// It is a no-op if the loop is already running or the supervisor is not authenticated.
func (supervisor *Supervisor) StartRefreshLoop(interval, minValidity time.Duration) {
	supervisor.mtx.Lock()
	defer supervisor.mtx.Unlock()
	if supervisor.refreshTask != nil || supervisor.terminated || !supervisor.state.active() {
		return
	}
	supervisor.refreshTask = task.NewRepeating(func() {
		_, _ = supervisor.Refresh(supervisor.ctx, minValidity)
	}, interval)
	supervisor.refreshTask.Start()
}

// State returns the current lifecycle state
func (supervisor *Supervisor) State() State {
	supervisor.mtx.Lock()
	defer supervisor.mtx.Unlock()
	return supervisor.state
}

// Claims returns the claims of the current session; nil if there are none
func (supervisor *Supervisor) Claims() identity.Claims {
	return supervisor.client.Claims()
}

// Session returns a fresh snapshot of the supervised session
func (supervisor *Supervisor) Session() Session {
	token := supervisor.client.Token()
	return Session{
		Authenticated: supervisor.State().active() && token != "",
		Token:         token,
		Claims:        supervisor.client.Claims(),
	}
}

// Done returns a channel that is closed once the supervisor instance reached its end
func (supervisor *Supervisor) Done() <-chan struct{} {
	return supervisor.done
}

// Logout logs the user out and terminates the supervisor instance
func (supervisor *Supervisor) Logout(ctx context.Context) error {
	state := supervisor.State()
	if state.Terminal() {
		return ErrTerminated
	}
	if !state.active() {
		return identity.ErrNotAuthenticated
	}
	return supervisor.terminate(StateLoggedOut, func() error {
		return supervisor.client.Logout(ctx)
	})
}

// Close tears the supervisor down without changing its state
func (supervisor *Supervisor) Close() {
	_ = supervisor.terminate(supervisor.State(), nil)
}

// terminate moves the supervisor into its final state exactly once: it stops the refresh loop, runs the given action
// and releases everyone waiting on Done. Later calls return ErrTerminated.
func (supervisor *Supervisor) terminate(state State, action func() error) error {
	err := ErrTerminated
	supervisor.terminateOnce.Do(func() {
		supervisor.mtx.Lock()
		supervisor.state = state
		supervisor.terminated = true
		refreshTask := supervisor.refreshTask
		supervisor.refreshTask = nil
		supervisor.mtx.Unlock()

		if refreshTask != nil {
			refreshTask.Stop(false)
		}
		err = nil
		if action != nil {
			err = action()
		}
		supervisor.cancel()
		close(supervisor.done)
	})
	return err
}

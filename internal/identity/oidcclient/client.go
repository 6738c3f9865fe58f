package oidcclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/browser"
	"github.com/rs/zerolog/log"
	"github.com/skybi/session-portal/internal/hashmap"
	"github.com/skybi/session-portal/internal/identity"
	"github.com/skybi/session-portal/internal/session"
	"golang.org/x/oauth2"
)

// Config represents the configuration of the OpenID Connect identity client
type Config struct {
	IssuerURL             string
	ClientID              string
	ClientSecret          string
	Scopes                []string
	SigningAlgorithms     []string
	RedirectURL           string
	PostLogoutRedirectURL string
	LoginFlowLifetime     time.Duration
	OpenBrowser           bool
	HTTPClient            *http.Client
}

// Client implements the identity client on top of an OpenID Connect provider.
// It keeps exactly one current session which is restored from and persisted to the session repository.
type Client struct {
	config   Config
	sessions session.Repository

	// Opener opens URLs the user has to visit; it defaults to opening them in the system browser
	Opener func(url string) error

	discoverMtx  sync.Mutex
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
	endSession   string

	mtx     sync.RWMutex
	current *session.Session
	pkce    bool

	refreshMtx sync.Mutex

	flows        *hashmap.ExpiringMap[string, *loginFlow]
	loginResults chan error
}

// New creates a new OpenID Connect identity client.
// Close has to be called as soon as the client is no longer needed.
func New(config Config, sessions session.Repository) *Client {
	if config.LoginFlowLifetime <= 0 {
		config.LoginFlowLifetime = 10 * time.Minute
	}
	flows := hashmap.NewExpiring[string, *loginFlow](config.LoginFlowLifetime)
	flows.ScheduleCleanupTask(time.Minute)
	return &Client{
		config:       config,
		sessions:     sessions,
		Opener:       browser.OpenURL,
		pkce:         true,
		flows:        flows,
		loginResults: make(chan error, 1),
	}
}

// Init discovers the provider and restores the latest stored session.
// It reports whether an authenticated session exists afterwards.
func (client *Client) Init(ctx context.Context, options identity.InitOptions) (bool, error) {
	if err := options.Validate(); err != nil {
		return false, fmt.Errorf("%w: %w", identity.ErrInitialization, err)
	}
	client.mtx.Lock()
	client.pkce = options.PKCEMethod == identity.PKCEMethodS256
	client.mtx.Unlock()

	if err := client.discover(ctx); err != nil {
		return false, fmt.Errorf("%w: %w", identity.ErrInitialization, err)
	}

	// Restore the most recent session
	ses, err := client.sessions.Latest(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: could not restore session: %w", identity.ErrInitialization, err)
	}
	if ses == nil {
		client.setCurrent(nil)
		return false, nil
	}

	// Refresh the restored session if its access token already expired
	if ses.ExpiresWithin(0) {
		refreshed, err := client.refresh(ctx, ses)
		if err != nil {
			log.Info().Err(err).Str("session", ses.ID.String()).Msg("could not refresh the restored session")
			client.discard(ctx, ses)
			return false, nil
		}
		ses = refreshed
	}

	// Check the session silently against the provider
	if options.CheckLoginIframe {
		if err := client.checkSession(ctx, ses); err != nil {
			log.Info().Err(err).Str("session", ses.ID.String()).Msg("the provider no longer accepts the restored session")
			client.discard(ctx, ses)
			return false, nil
		}
	}

	client.setCurrent(ses)
	return true, nil
}

// Token returns the current raw access token or an empty string if no session exists
func (client *Client) Token() string {
	client.mtx.RLock()
	defer client.mtx.RUnlock()
	if client.current == nil {
		return ""
	}
	return client.current.AccessToken
}

// Claims returns a copy of the current session's claims or nil if no session exists
func (client *Client) Claims() identity.Claims {
	client.mtx.RLock()
	defer client.mtx.RUnlock()
	if client.current == nil {
		return nil
	}
	return client.current.Claims.Clone()
}

// Close stops the background cleanup of pending login flows
func (client *Client) Close() {
	client.flows.StopCleanupTask()
}

func (client *Client) discover(ctx context.Context) error {
	client.discoverMtx.Lock()
	defer client.discoverMtx.Unlock()
	if client.provider != nil {
		return nil
	}

	provider, err := oidc.NewProvider(client.context(ctx), client.config.IssuerURL)
	if err != nil {
		return err
	}

	var metadata struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&metadata); err != nil {
		return err
	}

	scopes := []string{oidc.ScopeOpenID}
	for _, scope := range client.config.Scopes {
		if scope != oidc.ScopeOpenID {
			scopes = append(scopes, scope)
		}
	}

	client.provider = provider
	client.verifier = provider.Verifier(&oidc.Config{
		ClientID:             client.config.ClientID,
		SupportedSigningAlgs: client.config.SigningAlgorithms,
	})
	client.oauth2Config = &oauth2.Config{
		ClientID:     client.config.ClientID,
		ClientSecret: client.config.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  client.config.RedirectURL,
		Scopes:       scopes,
	}
	client.endSession = metadata.EndSessionEndpoint
	return nil
}

func (client *Client) discovered() bool {
	client.discoverMtx.Lock()
	defer client.discoverMtx.Unlock()
	return client.provider != nil
}

// context injects the configured HTTP client so that both go-oidc and oauth2 use it
func (client *Client) context(ctx context.Context) context.Context {
	if client.config.HTTPClient == nil {
		return ctx
	}
	return oidc.ClientContext(ctx, client.config.HTTPClient)
}

func (client *Client) checkSession(ctx context.Context, ses *session.Session) error {
	source := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: ses.AccessToken,
		TokenType:   "Bearer",
	})
	_, err := client.provider.UserInfo(client.context(ctx), source)
	return err
}

func (client *Client) setCurrent(ses *session.Session) {
	client.mtx.Lock()
	defer client.mtx.Unlock()
	client.current = ses
}

func (client *Client) currentSession() *session.Session {
	client.mtx.RLock()
	defer client.mtx.RUnlock()
	return client.current
}

// discard removes a session the provider no longer accepts from the repository
func (client *Client) discard(ctx context.Context, ses *session.Session) {
	if err := client.sessions.Delete(ctx, ses.ID); err != nil {
		log.Warn().Err(err).Str("session", ses.ID.String()).Msg("could not delete a stale session")
	}
	client.setCurrent(nil)
}

func (client *Client) open(target string, purpose string) {
	if !client.config.OpenBrowser || client.Opener == nil {
		log.Info().Str("url", target).Msgf("open this URL in your browser to %s", purpose)
		return
	}
	if err := client.Opener(target); err != nil {
		log.Warn().Err(err).Str("url", target).Msgf("could not open the browser; open this URL manually to %s", purpose)
	}
}

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skybi/session-portal/internal/identity"
)

var errFakeRefresh = errors.New("refresh token expired")

// fakeClient is an in-memory identity client
type fakeClient struct {
	mtx           sync.Mutex
	authenticated bool
	initErr       error
	initHook      func(ctx context.Context) error
	token         string
	claims        identity.Claims
	expiry        time.Time
	updateErr     error
	updateGate    chan struct{}

	inits            int
	logins           int
	logouts          int
	networkRefreshes int
	loginCalls       chan struct{}
	loginResults     chan error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		loginCalls:   make(chan struct{}, 16),
		loginResults: make(chan error, 1),
	}
}

// signIn makes the client hold a session whose token is valid for the given duration
func (client *fakeClient) signIn(validity time.Duration) {
	client.mtx.Lock()
	defer client.mtx.Unlock()
	client.authenticated = true
	client.token = "token-0"
	client.expiry = time.Now().Add(validity)
	client.claims = identity.Claims{
		"preferred_username": "alice",
		"realm_access":       map[string]any{"roles": []any{"admin", "user"}},
	}
}

func (client *fakeClient) Init(ctx context.Context, _ identity.InitOptions) (bool, error) {
	client.mtx.Lock()
	client.inits++
	hook := client.initHook
	client.mtx.Unlock()
	if hook != nil {
		if err := hook(ctx); err != nil {
			return false, err
		}
	}

	client.mtx.Lock()
	defer client.mtx.Unlock()
	if client.initErr != nil {
		return false, client.initErr
	}
	return client.authenticated, nil
}

func (client *fakeClient) Login(_ context.Context) error {
	client.mtx.Lock()
	client.logins++
	client.mtx.Unlock()
	client.loginCalls <- struct{}{}
	return nil
}

func (client *fakeClient) Logout(_ context.Context) error {
	client.mtx.Lock()
	defer client.mtx.Unlock()
	client.logouts++
	client.authenticated = false
	client.token = ""
	client.claims = nil
	return nil
}

func (client *fakeClient) Token() string {
	client.mtx.Lock()
	defer client.mtx.Unlock()
	return client.token
}

func (client *fakeClient) Claims() identity.Claims {
	client.mtx.Lock()
	defer client.mtx.Unlock()
	return client.claims.Clone()
}

func (client *fakeClient) UpdateToken(_ context.Context, minValidity time.Duration) (bool, error) {
	client.mtx.Lock()
	gate := client.updateGate
	client.mtx.Unlock()
	if gate != nil {
		<-gate
	}

	client.mtx.Lock()
	defer client.mtx.Unlock()
	if client.updateErr != nil {
		return false, client.updateErr
	}
	if minValidity >= 0 && time.Until(client.expiry) >= minValidity {
		return false, nil
	}
	client.networkRefreshes++
	client.token = fmt.Sprintf("token-%d", client.networkRefreshes)
	client.expiry = time.Now().Add(5 * time.Minute)
	return true, nil
}

func (client *fakeClient) AwaitLogin(ctx context.Context) error {
	select {
	case err := <-client.loginResults:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// completeLogin simulates the provider redirecting back after a successful login
func (client *fakeClient) completeLogin() {
	client.signIn(5 * time.Minute)
	client.loginResults <- nil
}

func (client *fakeClient) counts() (logins, logouts, networkRefreshes int) {
	client.mtx.Lock()
	defer client.mtx.Unlock()
	return client.logins, client.logouts, client.networkRefreshes
}

func (client *fakeClient) setUpdateErr(err error) {
	client.mtx.Lock()
	defer client.mtx.Unlock()
	client.updateErr = err
}

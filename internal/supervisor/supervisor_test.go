package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/skybi/session-portal/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestState(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "REAUTHENTICATING", StateReauthenticating.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
	assert.True(t, StateLoggedOut.Terminal())
	assert.True(t, StateReauthenticating.Terminal())
	assert.False(t, StateRefreshing.Terminal())
}

func TestBootstrap(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		prepare    func(client *fakeClient)
		wantErr    error
		wantLogins int
		wantState  State
	}{
		{
			name:       "authenticated",
			prepare:    func(client *fakeClient) { client.signIn(time.Minute) },
			wantLogins: 0,
			wantState:  StateAuthenticated,
		},
		{
			name:       "unauthenticated redirects",
			prepare:    func(*fakeClient) {},
			wantErr:    ErrRedirected,
			wantLogins: 1,
			wantState:  StateAuthenticating,
		},
		{
			name: "authenticated without token redirects",
			prepare: func(client *fakeClient) {
				client.signIn(time.Minute)
				client.token = ""
			},
			wantErr:    ErrRedirected,
			wantLogins: 1,
			wantState:  StateAuthenticating,
		},
		{
			name:       "init failure",
			prepare:    func(client *fakeClient) { client.initErr = errors.New("provider unreachable") },
			wantErr:    ErrInitialization,
			wantLogins: 0,
			wantState:  StateAuthenticating,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newFakeClient()
			tt.prepare(client)
			supervisor := New(client, Options{RefreshInterval: time.Hour})
			defer supervisor.Close()

			ses, err := supervisor.Bootstrap(context.Background(), identity.DefaultInitOptions())
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.False(t, ses.Authenticated)
				assert.True(t, isClosed(supervisor.Done()))
			} else {
				require.NoError(t, err)
				assert.True(t, ses.Authenticated)
				assert.Equal(t, "token-0", ses.Token)
				assert.False(t, isClosed(supervisor.Done()))
			}

			logins, _, _ := client.counts()
			assert.Equal(t, tt.wantLogins, logins)
			assert.Equal(t, tt.wantState, supervisor.State())
		})
	}
}

func TestBootstrap_OnlyOnce(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.signIn(time.Minute)
	supervisor := New(client, Options{RefreshInterval: time.Hour})
	defer supervisor.Close()

	_, err := supervisor.Bootstrap(context.Background(), identity.DefaultInitOptions())
	require.NoError(t, err)
	_, err = supervisor.Bootstrap(context.Background(), identity.DefaultInitOptions())
	assert.ErrorIs(t, err, ErrBootstrapped)
}

func TestClaims(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.signIn(time.Minute)
	supervisor := New(client, Options{RefreshInterval: time.Hour})
	defer supervisor.Close()
	_, err := supervisor.Bootstrap(context.Background(), identity.DefaultInitOptions())
	require.NoError(t, err)

	first := supervisor.Claims()
	second := supervisor.Claims()
	assert.Equal(t, first, second)
	assert.Equal(t, "alice", first.PreferredUsername())
	assert.Equal(t, []string{"admin", "user"}, first.Roles())

	// Mutating a snapshot does not leak into the next read
	first["preferred_username"] = "mallory"
	assert.Equal(t, "alice", supervisor.Claims().PreferredUsername())
}

func TestClaims_Absent(t *testing.T) {
	t.Parallel()

	supervisor := New(newFakeClient(), Options{})
	defer supervisor.Close()

	claims := supervisor.Claims()
	assert.Nil(t, claims)
	assert.Empty(t, claims.PreferredUsername())
	assert.Empty(t, claims.Roles())

	ses := supervisor.Session()
	assert.False(t, ses.Authenticated)
	assert.Empty(t, ses.Token)
}

func TestRefresh_MinValidity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		validity         time.Duration
		wantRefreshed    bool
		wantNetworkCalls int
	}{
		{name: "expiring soon", validity: 10 * time.Second, wantRefreshed: true, wantNetworkCalls: 1},
		{name: "valid long enough", validity: time.Minute, wantRefreshed: false, wantNetworkCalls: 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newFakeClient()
			client.signIn(tt.validity)
			supervisor := New(client, Options{RefreshInterval: time.Hour})
			defer supervisor.Close()
			_, err := supervisor.Bootstrap(context.Background(), identity.DefaultInitOptions())
			require.NoError(t, err)

			refreshed, err := supervisor.Refresh(context.Background(), 30*time.Second)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRefreshed, refreshed)

			_, _, networkCalls := client.counts()
			assert.Equal(t, tt.wantNetworkCalls, networkCalls)
			assert.Equal(t, StateAuthenticated, supervisor.State())
		})
	}
}

func TestRefresh_FailureReauthenticatesOnce(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.signIn(10 * time.Second)
	supervisor := New(client, Options{RefreshInterval: time.Hour})
	defer supervisor.Close()
	_, err := supervisor.Bootstrap(context.Background(), identity.DefaultInitOptions())
	require.NoError(t, err)

	client.setUpdateErr(errFakeRefresh)
	_, err = supervisor.Refresh(context.Background(), 30*time.Second)
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.ErrorIs(t, err, errFakeRefresh)
	assert.Equal(t, StateReauthenticating, supervisor.State())
	assert.True(t, isClosed(supervisor.Done()))

	_, err = supervisor.Refresh(context.Background(), 30*time.Second)
	assert.ErrorIs(t, err, ErrTerminated)

	logins, _, _ := client.counts()
	assert.Equal(t, 1, logins)
}

func TestRefresh_SingleFlight(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.signIn(10 * time.Second)
	gate := make(chan struct{})
	client.updateGate = gate
	supervisor := New(client, Options{RefreshInterval: time.Hour})
	defer supervisor.Close()
	_, err := supervisor.Bootstrap(context.Background(), identity.DefaultInitOptions())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := supervisor.Refresh(context.Background(), 30*time.Second)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	_, _, networkCalls := client.counts()
	assert.Equal(t, 1, networkCalls)
	assert.Equal(t, StateAuthenticated, supervisor.State())
}

func TestRefreshLoop(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.signIn(10 * time.Second)
	supervisor := New(client, Options{RefreshInterval: 5 * time.Millisecond, MinValidity: 30 * time.Second})
	defer supervisor.Close()
	_, err := supervisor.Bootstrap(context.Background(), identity.DefaultInitOptions())
	require.NoError(t, err)

	// The first tick refreshes the expiring token; the new one is valid for minutes
	require.Eventually(t, func() bool {
		_, _, networkCalls := client.counts()
		return networkCalls == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, "token-1", supervisor.Session().Token)

	// A failing refresh ends the instance with exactly one login
	client.setUpdateErr(errFakeRefresh)
	client.mtx.Lock()
	client.expiry = time.Now()
	client.mtx.Unlock()
	select {
	case <-supervisor.Done():
	case <-time.After(time.Second):
		require.FailNow(t, "the supervisor did not terminate")
	}
	assert.Equal(t, StateReauthenticating, supervisor.State())

	time.Sleep(30 * time.Millisecond)
	logins, _, _ := client.counts()
	assert.Equal(t, 1, logins)
}

func TestLogout(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.signIn(time.Minute)
	supervisor := New(client, Options{RefreshInterval: time.Hour})
	defer supervisor.Close()

	assert.ErrorIs(t, supervisor.Logout(context.Background()), identity.ErrNotAuthenticated)

	_, err := supervisor.Bootstrap(context.Background(), identity.DefaultInitOptions())
	require.NoError(t, err)

	require.NoError(t, supervisor.Logout(context.Background()))
	assert.Equal(t, StateLoggedOut, supervisor.State())
	assert.True(t, isClosed(supervisor.Done()))
	assert.False(t, supervisor.Session().Authenticated)

	assert.ErrorIs(t, supervisor.Logout(context.Background()), ErrTerminated)
	_, err = supervisor.Refresh(context.Background(), 30*time.Second)
	assert.ErrorIs(t, err, ErrTerminated)

	_, logouts, _ := client.counts()
	assert.Equal(t, 1, logouts)
}

func TestClose_KeepsState(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.signIn(time.Minute)
	supervisor := New(client, Options{RefreshInterval: time.Hour})
	_, err := supervisor.Bootstrap(context.Background(), identity.DefaultInitOptions())
	require.NoError(t, err)

	supervisor.Close()
	assert.Equal(t, StateAuthenticated, supervisor.State())
	assert.True(t, isClosed(supervisor.Done()))
	assert.ErrorIs(t, supervisor.Logout(context.Background()), ErrTerminated)
}

func TestBootstrap_ClosedDuringInit(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.signIn(time.Minute)
	supervisor := New(client, Options{RefreshInterval: 10 * time.Millisecond})
	client.initHook = func(_ context.Context) error {
		supervisor.Close()
		return nil
	}

	_, err := supervisor.Bootstrap(context.Background(), identity.DefaultInitOptions())
	require.ErrorIs(t, err, ErrTerminated)
	assert.True(t, isClosed(supervisor.Done()))
	assert.NotEqual(t, StateAuthenticated, supervisor.State())

	supervisor.StartRefreshLoop(10*time.Millisecond, time.Hour)
	supervisor.mtx.Lock()
	refreshTask := supervisor.refreshTask
	supervisor.mtx.Unlock()
	assert.Nil(t, refreshTask)

	_, err = supervisor.Refresh(context.Background(), identity.ForceRefresh)
	assert.ErrorIs(t, err, ErrTerminated)
	_, _, networkRefreshes := client.counts()
	assert.Zero(t, networkRefreshes)
}

func TestBootstrap_ClosedDuringInitWithoutSession(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	supervisor := New(client, Options{RefreshInterval: time.Hour})
	client.initHook = func(_ context.Context) error {
		supervisor.Close()
		return nil
	}

	_, err := supervisor.Bootstrap(context.Background(), identity.DefaultInitOptions())
	require.ErrorIs(t, err, ErrTerminated)
	assert.NotErrorIs(t, err, ErrInitialization)
	logins, _, _ := client.counts()
	assert.Zero(t, logins)
}

func newProtectedAPI(t *testing.T, acceptedToken string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		token := strings.TrimPrefix(request.Header.Get("Authorization"), "Bearer ")
		writer.Header().Set("Content-Type", "application/json")
		switch {
		case request.URL.Path == "/broken":
			writer.WriteHeader(http.StatusInternalServerError)
			_, _ = writer.Write([]byte(`{"detail":"boom"}`))
		case request.URL.Path == "/numbers":
			_, _ = writer.Write([]byte(`{"id":9007199254740993,"ratio":0.5}`))
		case token != acceptedToken:
			writer.WriteHeader(http.StatusUnauthorized)
			_, _ = writer.Write([]byte(`{"detail":"Token expired"}`))
		default:
			_, _ = writer.Write([]byte(`{"username":"alice","roles":["admin","user"]}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCallAPI(t *testing.T) {
	t.Parallel()

	api := newProtectedAPI(t, "token-0")
	client := newFakeClient()
	client.signIn(time.Minute)
	supervisor := New(client, Options{RefreshInterval: time.Hour})
	defer supervisor.Close()
	_, err := supervisor.Bootstrap(context.Background(), identity.DefaultInitOptions())
	require.NoError(t, err)

	body, err := supervisor.CallAPI(context.Background(), api.URL+"/protected")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"username": "alice",
		"roles":    []any{"admin", "user"},
	}, body)

	_, err = supervisor.CallAPI(context.Background(), api.URL+"/broken")
	var callErr *APICallError
	require.ErrorAs(t, err, &callErr)
	assert.ErrorIs(t, err, ErrAPICall)
	assert.Equal(t, http.StatusInternalServerError, callErr.Status)
	assert.Equal(t, map[string]any{"detail": "boom"}, callErr.Body)

	_, err = supervisor.CallAPI(context.Background(), "http://127.0.0.1:1/protected")
	require.ErrorAs(t, err, &callErr)
	assert.Error(t, callErr.Err)

	body, err = supervisor.CallAPI(context.Background(), api.URL+"/numbers")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"id":    json.Number("9007199254740993"),
		"ratio": json.Number("0.5"),
	}, body)
}

func TestDecodeBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		body    any
		invalid bool
	}{
		{name: "empty", raw: "", body: nil},
		{name: "whitespace", raw: " \n", body: nil},
		{name: "object", raw: `{"message":"This is public"}`, body: map[string]any{"message": "This is public"}},
		{name: "large integer", raw: `[9007199254740993]`, body: []any{json.Number("9007199254740993")}},
		{name: "string", raw: `"hello"`, body: "hello"},
		{name: "trailing newline", raw: "{}\n", body: map[string]any{}},
		{name: "plain text", raw: "Internal Server Error", body: "Internal Server Error", invalid: true},
		{name: "trailing garbage", raw: `{"a":1} nope`, body: `{"a":1} nope`, invalid: true},
		{name: "two values", raw: `{}{}`, body: `{}{}`, invalid: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			body, invalid := decodeBody([]byte(tt.raw))
			assert.Equal(t, tt.body, body)
			assert.Equal(t, tt.invalid, invalid)
		})
	}
}

func TestCallAPI_RetryPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		policy           RetryPolicy
		wantErr          bool
		wantNetworkCalls int
	}{
		{name: "none surfaces the 401", policy: RetryNone, wantErr: true, wantNetworkCalls: 0},
		{name: "refresh once recovers", policy: RetryRefreshOnce, wantErr: false, wantNetworkCalls: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// The API only accepts the token issued by the first refresh
			api := newProtectedAPI(t, "token-1")
			client := newFakeClient()
			client.signIn(time.Minute)
			supervisor := New(client, Options{RefreshInterval: time.Hour, RetryPolicy: tt.policy})
			defer supervisor.Close()
			_, err := supervisor.Bootstrap(context.Background(), identity.DefaultInitOptions())
			require.NoError(t, err)

			_, err = supervisor.CallAPI(context.Background(), api.URL+"/protected")
			if tt.wantErr {
				var callErr *APICallError
				require.ErrorAs(t, err, &callErr)
				assert.Equal(t, http.StatusUnauthorized, callErr.Status)
			} else {
				require.NoError(t, err)
			}

			_, _, networkCalls := client.counts()
			assert.Equal(t, tt.wantNetworkCalls, networkCalls)
			logins, _, _ := client.counts()
			assert.Equal(t, 0, logins)
		})
	}
}

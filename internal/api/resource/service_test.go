package resource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/skybi/session-portal/internal/api/schema"
	"github.com/skybi/session-portal/internal/config"
	"github.com/skybi/session-portal/internal/identity/oidctest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "react-client"
	testOrigin   = "http://localhost:5173"
)

func newTestService(t *testing.T) (*oidctest.Provider, http.Handler) {
	t.Helper()

	provider := oidctest.Start(t, testClientID)
	service := &Service{
		Config: &config.Config{
			OIDCIssuerURL:            provider.Issuer(),
			OIDCClientID:             testClientID,
			OIDCSigningAlgorithms:    []string{"RS256"},
			ResourceAPIAllowedOrigin: testOrigin,
		},
	}
	require.NoError(t, service.Initialize(context.Background()))
	return provider, service.Handler()
}

func serve(handler http.Handler, path, token string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeErrors(t *testing.T, recorder *httptest.ResponseRecorder) *schema.ErrorResponse {
	t.Helper()
	response := new(schema.ErrorResponse)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), response))
	require.Len(t, response.Errors, 1)
	return response
}

func TestEndpointPublic(t *testing.T) {
	t.Parallel()
	_, handler := newTestService(t)

	recorder := serve(handler, "/public", "")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"message":"This is public"}`, recorder.Body.String())
}

func TestEndpointProtected(t *testing.T) {
	t.Parallel()
	provider, handler := newTestService(t)
	provider.SetClaims(map[string]any{
		"preferred_username": "alice",
		"realm_access":       map[string]any{"roles": []any{"user", "admin"}},
	})

	recorder := serve(handler, "/protected", provider.AccessToken(time.Minute))
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"username":"alice","roles":["user","admin"]}`, recorder.Body.String())
}

func TestMiddlewareVerifyToken(t *testing.T) {
	t.Parallel()
	provider, handler := newTestService(t)

	otherAudience := func() string {
		now := time.Now()
		return provider.SignJWT(map[string]any{
			"iss": provider.Issuer(),
			"sub": "someone",
			"aud": "other-client",
			"azp": "other-client",
			"iat": now.Unix(),
			"exp": now.Add(time.Minute).Unix(),
		})
	}
	directAudience := func() string {
		now := time.Now()
		return provider.SignJWT(map[string]any{
			"iss": provider.Issuer(),
			"sub": "someone",
			"aud": []string{"account", testClientID},
			"azp": "other-client",
			"iat": now.Unix(),
			"exp": now.Add(time.Minute).Unix(),
		})
	}
	foreignIssuer := func() string {
		now := time.Now()
		return provider.SignJWT(map[string]any{
			"iss": "http://issuer.invalid",
			"sub": "someone",
			"azp": testClientID,
			"iat": now.Unix(),
			"exp": now.Add(time.Minute).Unix(),
		})
	}

	tests := []struct {
		name   string
		token  func() string
		status int
		err    *schema.Error
	}{
		{name: "missing bearer", token: func() string { return "" }, status: http.StatusUnauthorized, err: schema.ErrUnauthorized},
		{name: "garbage", token: func() string { return "not-a-jwt" }, status: http.StatusUnauthorized, err: schema.ErrTokenInvalid},
		{name: "expired", token: func() string { return provider.AccessToken(-time.Minute) }, status: http.StatusUnauthorized, err: schema.ErrTokenExpired},
		{name: "foreign issuer", token: foreignIssuer, status: http.StatusUnauthorized, err: schema.ErrTokenInvalid},
		{name: "other audience", token: otherAudience, status: http.StatusUnauthorized, err: schema.ErrTokenInvalidAudience},
		{name: "audience contains client", token: directAudience, status: http.StatusOK},
		{name: "authorized party is client", token: func() string { return provider.AccessToken(time.Minute) }, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := serve(handler, "/protected", tt.token())
			require.Equal(t, tt.status, recorder.Code)
			if tt.err != nil {
				response := decodeErrors(t, recorder)
				assert.Equal(t, tt.status, response.Status)
				assert.Equal(t, tt.err.Type, response.Errors[0].Type)
				assert.Equal(t, tt.err.Message, response.Errors[0].Message)
			}
		})
	}
}

func TestEndpointAdmin(t *testing.T) {
	t.Parallel()
	provider, handler := newTestService(t)

	provider.SetClaims(map[string]any{
		"realm_access": map[string]any{"roles": []any{"user"}},
	})
	recorder := serve(handler, "/admin", provider.AccessToken(time.Minute))
	require.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Equal(t, schema.ErrForbidden.Type, decodeErrors(t, recorder).Errors[0].Type)

	provider.SetClaims(map[string]any{
		"realm_access": map[string]any{"roles": []any{"user", "admin"}},
	})
	recorder = serve(handler, "/admin", provider.AccessToken(time.Minute))
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"message":"Welcome admin"}`, recorder.Body.String())

	recorder = serve(handler, "/admin", "")
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestCORS(t *testing.T) {
	t.Parallel()
	_, handler := newTestService(t)

	request := httptest.NewRequest(http.MethodOptions, "/protected", nil)
	request.Header.Set("Origin", testOrigin)
	request.Header.Set("Access-Control-Request-Method", http.MethodGet)
	request.Header.Set("Access-Control-Request-Headers", "Authorization")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, testOrigin, recorder.Header().Get("Access-Control-Allow-Origin"))

	request = httptest.NewRequest(http.MethodGet, "/public", nil)
	request.Header.Set("Origin", "http://evil.invalid")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	_, handler := newTestService(t)

	recorder := serve(handler, "/unknown", "")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, schema.ErrNotFound.Type, decodeErrors(t, recorder).Errors[0].Type)
}

// Package oidctest provides a disposable OpenID provider for tests.
// It supports discovery, the authorization code flow with PKCE, refresh token grants, user info and RP-initiated
// logout; tokens are signed with a freshly generated RSA key.
package oidctest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
	"github.com/skybi/session-portal/internal/random"
	"github.com/stretchr/testify/require"
)

const keyID = "test-key"

type authRequest struct {
	nonce               string
	codeChallenge       string
	codeChallengeMethod string
	redirectURI         string
}

// Provider is a local OpenID provider
type Provider struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey
	signer jose.Signer

	mtx                 sync.Mutex
	clientID            string
	subject             string
	claims              map[string]any
	accessTokenLifetime time.Duration
	refreshLifetime     time.Duration
	codes               map[string]*authRequest
	refreshTokens       map[string]string
	failRefresh         bool
	revoked             bool
	authCodeGrants      int
	refreshGrants       int
	logouts             []url.Values
}

// Start starts a disposable provider which is stopped automatically once the test finished
func Start(t *testing.T, clientID string) *Provider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", keyID),
	)
	require.NoError(t, err)

	provider := &Provider{
		t:                   t,
		key:                 key,
		signer:              signer,
		clientID:            clientID,
		subject:             "8d4f1c7e-2f0a-4b8e-9c1d-3e5a7b9c0d12",
		claims:              map[string]any{},
		accessTokenLifetime: 5 * time.Minute,
		refreshLifetime:     30 * time.Minute,
		codes:               make(map[string]*authRequest),
		refreshTokens:       make(map[string]string),
	}
	provider.server = httptest.NewServer(provider)
	t.Cleanup(provider.server.Close)
	return provider
}

// Issuer returns the issuer URL of the provider
func (provider *Provider) Issuer() string {
	return provider.server.URL
}

// SetClaims sets the additional claims put into every issued access and ID token
func (provider *Provider) SetClaims(claims map[string]any) {
	provider.mtx.Lock()
	defer provider.mtx.Unlock()
	provider.claims = claims
}

// SetAccessTokenLifetime sets the lifetime of newly issued access tokens
func (provider *Provider) SetAccessTokenLifetime(lifetime time.Duration) {
	provider.mtx.Lock()
	defer provider.mtx.Unlock()
	provider.accessTokenLifetime = lifetime
}

// FailRefresh makes every following refresh token grant fail
func (provider *Provider) FailRefresh(fail bool) {
	provider.mtx.Lock()
	defer provider.mtx.Unlock()
	provider.failRefresh = fail
}

// RevokeSessions makes the user info endpoint reject every access token
func (provider *Provider) RevokeSessions() {
	provider.mtx.Lock()
	defer provider.mtx.Unlock()
	provider.revoked = true
}

// AuthCodeGrants returns the amount of successful authorization code grants
func (provider *Provider) AuthCodeGrants() int {
	provider.mtx.Lock()
	defer provider.mtx.Unlock()
	return provider.authCodeGrants
}

// RefreshGrants returns the amount of successful refresh token grants
func (provider *Provider) RefreshGrants() int {
	provider.mtx.Lock()
	defer provider.mtx.Unlock()
	return provider.refreshGrants
}

// Logouts returns the query parameters of every request to the end session endpoint
func (provider *Provider) Logouts() []url.Values {
	provider.mtx.Lock()
	defer provider.mtx.Unlock()
	return append([]url.Values{}, provider.logouts...)
}

// Authorize plays the user agent: it follows the given authorization URL and returns the callback URL the provider
// redirected to
func (provider *Provider) Authorize(authURL string) *url.URL {
	provider.t.Helper()

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	response, err := client.Get(authURL)
	require.NoError(provider.t, err)
	defer response.Body.Close()
	require.Equal(provider.t, http.StatusFound, response.StatusCode)

	location, err := response.Location()
	require.NoError(provider.t, err)
	return location
}

// SignJWT signs the given claims using the provider's key
func (provider *Provider) SignJWT(claims map[string]any) string {
	provider.t.Helper()
	raw, err := jwt.Signed(provider.signer).Claims(claims).Serialize()
	require.NoError(provider.t, err)
	return raw
}

// AccessToken issues an access token shaped like the ones returned by the token endpoint
func (provider *Provider) AccessToken(lifetime time.Duration) string {
	provider.mtx.Lock()
	claims := provider.accessTokenClaims(time.Now().Add(lifetime))
	provider.mtx.Unlock()
	return provider.SignJWT(claims)
}

// ServeHTTP implements the provider's http.Handler
func (provider *Provider) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	switch request.URL.Path {
	case "/.well-known/openid-configuration":
		provider.writeJSON(writer, http.StatusOK, map[string]any{
			"issuer":                                provider.Issuer(),
			"authorization_endpoint":                provider.Issuer() + "/auth",
			"token_endpoint":                        provider.Issuer() + "/token",
			"jwks_uri":                              provider.Issuer() + "/certs",
			"userinfo_endpoint":                     provider.Issuer() + "/userinfo",
			"end_session_endpoint":                  provider.Issuer() + "/logout",
			"id_token_signing_alg_values_supported": []string{"RS256"},
			"code_challenge_methods_supported":      []string{"S256"},
		})
	case "/certs":
		provider.writeJSON(writer, http.StatusOK, jose.JSONWebKeySet{
			Keys: []jose.JSONWebKey{{
				Key:       &provider.key.PublicKey,
				KeyID:     keyID,
				Algorithm: string(jose.RS256),
				Use:       "sig",
			}},
		})
	case "/auth":
		provider.handleAuth(writer, request)
	case "/token":
		provider.handleToken(writer, request)
	case "/userinfo":
		provider.handleUserInfo(writer, request)
	case "/logout":
		provider.mtx.Lock()
		provider.logouts = append(provider.logouts, request.URL.Query())
		provider.mtx.Unlock()
		writer.WriteHeader(http.StatusOK)
	default:
		writer.WriteHeader(http.StatusNotFound)
	}
}

func (provider *Provider) handleAuth(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	redirectURI := query.Get("redirect_uri")
	if redirectURI == "" || query.Get("response_type") != "code" || query.Get("client_id") != provider.clientID {
		provider.writeJSON(writer, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	code, err := random.String(32, random.CharsetAlphanumeric)
	if err != nil {
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	provider.mtx.Lock()
	provider.codes[code] = &authRequest{
		nonce:               query.Get("nonce"),
		codeChallenge:       query.Get("code_challenge"),
		codeChallengeMethod: query.Get("code_challenge_method"),
		redirectURI:         redirectURI,
	}
	provider.mtx.Unlock()

	target, err := url.Parse(redirectURI)
	if err != nil {
		provider.writeJSON(writer, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	values := target.Query()
	values.Set("state", query.Get("state"))
	values.Set("code", code)
	target.RawQuery = values.Encode()
	http.Redirect(writer, request, target.String(), http.StatusFound)
}

func (provider *Provider) handleToken(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := request.ParseForm(); err != nil {
		provider.writeJSON(writer, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	provider.mtx.Lock()
	defer provider.mtx.Unlock()

	var nonce string
	switch request.PostForm.Get("grant_type") {
	case "authorization_code":
		auth, ok := provider.codes[request.PostForm.Get("code")]
		if !ok {
			provider.writeJSON(writer, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		delete(provider.codes, request.PostForm.Get("code"))
		if request.PostForm.Get("redirect_uri") != auth.redirectURI {
			provider.writeJSON(writer, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		if err := verifyChallenge(auth, request.PostForm.Get("code_verifier")); err != nil {
			provider.writeJSON(writer, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": err.Error()})
			return
		}
		nonce = auth.nonce
		provider.authCodeGrants++
	case "refresh_token":
		refreshToken := request.PostForm.Get("refresh_token")
		knownNonce, ok := provider.refreshTokens[refreshToken]
		if !ok || provider.failRefresh {
			provider.writeJSON(writer, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Token is not active"})
			return
		}
		delete(provider.refreshTokens, refreshToken)
		nonce = knownNonce
		provider.refreshGrants++
	default:
		provider.writeJSON(writer, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	now := time.Now()
	accessToken, err := jwt.Signed(provider.signer).Claims(provider.accessTokenClaims(now.Add(provider.accessTokenLifetime))).Serialize()
	if err != nil {
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	idClaims := provider.baseClaims(now.Add(provider.accessTokenLifetime))
	idClaims["aud"] = provider.clientID
	if nonce != "" {
		idClaims["nonce"] = nonce
	}
	idToken, err := jwt.Signed(provider.signer).Claims(idClaims).Serialize()
	if err != nil {
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	refreshToken, err := random.String(48, random.CharsetAlphanumeric)
	if err != nil {
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	provider.refreshTokens[refreshToken] = nonce

	provider.writeJSON(writer, http.StatusOK, map[string]any{
		"access_token":       accessToken,
		"token_type":         "Bearer",
		"expires_in":         int(provider.accessTokenLifetime.Seconds()),
		"refresh_token":      refreshToken,
		"refresh_expires_in": int(provider.refreshLifetime.Seconds()),
		"id_token":           idToken,
		"scope":              "openid profile",
	})
}

func (provider *Provider) handleUserInfo(writer http.ResponseWriter, request *http.Request) {
	header := request.Header.Get("Authorization")
	provider.mtx.Lock()
	revoked := provider.revoked
	provider.mtx.Unlock()
	if !strings.HasPrefix(header, "Bearer ") || revoked {
		provider.writeJSON(writer, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}
	provider.writeJSON(writer, http.StatusOK, map[string]any{
		"sub": provider.subject,
	})
}

// baseClaims has to be called with the mutex held
func (provider *Provider) baseClaims(expiry time.Time) map[string]any {
	claims := make(map[string]any, len(provider.claims)+6)
	for key, value := range provider.claims {
		claims[key] = value
	}
	claims["iss"] = provider.Issuer()
	claims["sub"] = provider.subject
	claims["azp"] = provider.clientID
	claims["iat"] = time.Now().Unix()
	claims["exp"] = expiry.Unix()
	claims["jti"] = uuid.NewString()
	return claims
}

// accessTokenClaims has to be called with the mutex held
func (provider *Provider) accessTokenClaims(expiry time.Time) map[string]any {
	claims := provider.baseClaims(expiry)
	claims["aud"] = "account"
	claims["typ"] = "Bearer"
	return claims
}

func (provider *Provider) writeJSON(writer http.ResponseWriter, status int, value any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(value)
}

func verifyChallenge(auth *authRequest, verifier string) error {
	if auth.codeChallenge == "" {
		return nil
	}
	if auth.codeChallengeMethod != "S256" {
		return errors.New("unsupported code challenge method")
	}
	sum := sha256.Sum256([]byte(verifier))
	if base64.RawURLEncoding.EncodeToString(sum[:]) != auth.codeChallenge {
		return errors.New("code verifier does not match the code challenge")
	}
	return nil
}

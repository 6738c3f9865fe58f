package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaims_Accessors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		claims   Claims
		username string
		roles    []string
	}{
		{
			name: "keycloak shape",
			claims: Claims{
				"preferred_username": "alice",
				"realm_access":       map[string]any{"roles": []any{"admin", "user"}},
			},
			username: "alice",
			roles:    []string{"admin", "user"},
		},
		{
			name: "string slice roles",
			claims: Claims{
				"realm_access": map[string]any{"roles": []string{"user"}},
			},
			roles: []string{"user"},
		},
		{
			name:   "nil claims",
			claims: nil,
			roles:  []string{},
		},
		{
			name: "malformed claims",
			claims: Claims{
				"preferred_username": 42,
				"realm_access":       "admin",
			},
			roles: []string{},
		},
		{
			name: "non-string roles are skipped",
			claims: Claims{
				"realm_access": map[string]any{"roles": []any{"user", 7}},
			},
			roles: []string{"user"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.username, tt.claims.PreferredUsername())
			assert.Equal(t, tt.roles, tt.claims.Roles())
		})
	}
}

func TestClaims_HasRole(t *testing.T) {
	t.Parallel()

	claims := Claims{"realm_access": map[string]any{"roles": []any{"admin"}}}
	assert.True(t, claims.HasRole("admin"))
	assert.False(t, claims.HasRole("user"))
	assert.False(t, Claims(nil).HasRole("admin"))
}

func TestClaims_Clone(t *testing.T) {
	t.Parallel()

	original := Claims{
		"sub":          "123",
		"realm_access": map[string]any{"roles": []any{"admin"}},
	}
	clone := original.Clone()
	require.Equal(t, original, clone)

	clone["realm_access"].(map[string]any)["roles"].([]any)[0] = "user"
	clone["sub"] = "456"
	assert.Equal(t, []string{"admin"}, original.Roles())
	assert.Equal(t, "123", original.Subject())

	assert.Nil(t, Claims(nil).Clone())
}

func TestInitOptions_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, DefaultInitOptions().Validate())
	assert.NoError(t, InitOptions{OnLoad: OnLoadLoginRequired}.Validate())
	assert.ErrorIs(t, InitOptions{OnLoad: "check-sso"}.Validate(), ErrInvalidInitOption)
	assert.ErrorIs(t, InitOptions{OnLoad: OnLoadLoginRequired, PKCEMethod: "plain"}.Validate(), ErrInvalidInitOption)
}

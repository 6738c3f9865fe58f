package identity

import (
	"fmt"
	"time"
)

const (
	// OnLoadLoginRequired makes the identity client require an authenticated session on initialization
	OnLoadLoginRequired = "login-required"

	// PKCEMethodS256 selects the SHA-256 code challenge method
	PKCEMethodS256 = "S256"

	// ForceRefresh may be passed as the minimum validity to always refresh the access token
	ForceRefresh time.Duration = -1
)

// InitOptions represents the options the identity client gets initialized with
type InitOptions struct {
	OnLoad           string
	PKCEMethod       string
	CheckLoginIframe bool
}

// DefaultInitOptions returns the options a session gets bootstrapped with if nothing else is configured
func DefaultInitOptions() InitOptions {
	return InitOptions{
		OnLoad:     OnLoadLoginRequired,
		PKCEMethod: PKCEMethodS256,
	}
}

// Validate makes sure that only supported option values are used
func (options InitOptions) Validate() error {
	if options.OnLoad != OnLoadLoginRequired {
		return fmt.Errorf("%w: unsupported onLoad value %q", ErrInvalidInitOption, options.OnLoad)
	}
	if options.PKCEMethod != "" && options.PKCEMethod != PKCEMethodS256 {
		return fmt.Errorf("%w: unsupported PKCE method %q", ErrInvalidInitOption, options.PKCEMethod)
	}
	return nil
}

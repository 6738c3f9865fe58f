package identity

import "errors"

var (
	ErrInitialization    = errors.New("identity client initialization failed")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrRefresh           = errors.New("token refresh failed")
	ErrLoginFailed       = errors.New("login failed")
	ErrInvalidInitOption = errors.New("invalid init option")
)

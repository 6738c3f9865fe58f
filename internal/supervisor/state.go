package supervisor

// State represents a state of the session lifecycle
type State int

const (
	StateUninitialized State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
	StateReauthenticating
	StateLoggedOut
)

var stateNames = map[State]string{
	StateUninitialized:    "UNINITIALIZED",
	StateAuthenticating:   "AUTHENTICATING",
	StateAuthenticated:    "AUTHENTICATED",
	StateRefreshing:       "REFRESHING",
	StateReauthenticating: "REAUTHENTICATING",
	StateLoggedOut:        "LOGGED_OUT",
}

// String returns the name of the state
func (state State) String() string {
	if name, ok := stateNames[state]; ok {
		return name
	}
	return "UNKNOWN"
}

// Terminal reports whether the supervisor instance can not leave the state anymore
func (state State) Terminal() bool {
	return state == StateReauthenticating || state == StateLoggedOut
}

// active reports whether an authenticated session is in use
func (state State) active() bool {
	return state == StateAuthenticated || state == StateRefreshing
}

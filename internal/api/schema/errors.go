package schema

var emptyMap = map[string]any{}

var (
	ErrInternal = &Error{
		Type:    "generic.internal",
		Message: "An internal error occurred.",
		Details: emptyMap,
	}
	ErrNotFound = &Error{
		Type:    "generic.notFound",
		Message: "Resource not found.",
		Details: emptyMap,
	}
	ErrMethodNotAllowed = &Error{
		Type:    "generic.methodNotAllowed",
		Message: "Method not allowed.",
		Details: emptyMap,
	}
	ErrUnauthorized = &Error{
		Type:    "access.unauthorized",
		Message: "Unauthorized",
		Details: emptyMap,
	}
	ErrForbidden = &Error{
		Type:    "access.forbidden",
		Message: "Forbidden",
		Details: emptyMap,
	}
	ErrTokenExpired = &Error{
		Type:    "access.token.expired",
		Message: "Token expired",
		Details: emptyMap,
	}
	ErrTokenInvalid = &Error{
		Type:    "access.token.invalid",
		Message: "Invalid token",
		Details: emptyMap,
	}
	ErrTokenInvalidAudience = &Error{
		Type:    "access.token.invalidAudience",
		Message: "Invalid audience",
		Details: emptyMap,
	}
	ErrLoginFailed = &Error{
		Type:    "auth.loginFailed",
		Message: "The login could not be completed.",
		Details: emptyMap,
	}
	ErrNotSignedIn = &Error{
		Type:    "auth.notSignedIn",
		Message: "There is no active session yet.",
		Details: emptyMap,
	}
)

// ErrorResponse represents the response structure sent by the portal or resource API whenever errors occurred
type ErrorResponse struct {
	Status int      `json:"status"`
	Errors []*Error `json:"errors"`
}

// Error represents a single error present in the ErrorResponse
type Error struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// WithDetails returns a copy of the error carrying the given details
func (err *Error) WithDetails(details map[string]any) *Error {
	return &Error{
		Type:    err.Type,
		Message: err.Message,
		Details: details,
	}
}

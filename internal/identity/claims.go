package identity

// Claims represents the parsed claims of a token as handed out by the identity provider.
// A nil Claims value is valid and behaves like an empty claim set.
type Claims map[string]any

// PreferredUsername returns the 'preferred_username' claim or an empty string if it is missing
func (claims Claims) PreferredUsername() string {
	username, _ := claims["preferred_username"].(string)
	return username
}

// Subject returns the 'sub' claim or an empty string if it is missing
func (claims Claims) Subject() string {
	subject, _ := claims["sub"].(string)
	return subject
}

// Roles returns the realm roles found under 'realm_access.roles'.
// Missing or malformed role claims result in an empty slice.
func (claims Claims) Roles() []string {
	realmAccess, ok := claims["realm_access"].(map[string]any)
	if !ok {
		return []string{}
	}
	switch raw := realmAccess["roles"].(type) {
	case []string:
		return append([]string{}, raw...)
	case []any:
		roles := make([]string, 0, len(raw))
		for _, role := range raw {
			if str, ok := role.(string); ok {
				roles = append(roles, str)
			}
		}
		return roles
	default:
		return []string{}
	}
}

// HasRole reports whether the realm roles contain the given role
func (claims Claims) HasRole(role string) bool {
	for _, candidate := range claims.Roles() {
		if candidate == role {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the claim set so that callers cannot mutate a shared snapshot
func (claims Claims) Clone() Claims {
	if claims == nil {
		return nil
	}
	return cloneValue(map[string]any(claims)).(map[string]any)
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		clone := make(map[string]any, len(typed))
		for key, val := range typed {
			clone[key] = cloneValue(val)
		}
		return clone
	case Claims:
		return Claims(cloneValue(map[string]any(typed)).(map[string]any))
	case []any:
		clone := make([]any, len(typed))
		for i, val := range typed {
			clone[i] = cloneValue(val)
		}
		return clone
	case []string:
		return append([]string{}, typed...)
	default:
		return value
	}
}

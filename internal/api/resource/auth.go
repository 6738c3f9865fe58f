package resource

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog/log"
	"github.com/skybi/session-portal/internal/api/schema"
	"github.com/skybi/session-portal/internal/identity"
)

type contextKey string

var contextKeyClaims = contextKey("claims")

// MiddlewareVerifyToken makes sure that the requesting client has provided a valid bearer token.
// Additionally, it injects the token's claims into the request context.
func (service *Service) MiddlewareVerifyToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		// Try to read the 'Authorization' header and verify it is of type 'Bearer'
		header := request.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			service.writer.WriteErrors(writer, http.StatusUnauthorized, schema.ErrUnauthorized)
			return
		}
		rawToken := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

		// Verify the signature, issuer and expiry of the token
		token, err := service.Verifier.Verify(request.Context(), rawToken)
		if err != nil {
			var expired *oidc.TokenExpiredError
			if errors.As(err, &expired) {
				log.Warn().Time("expiry", expired.Expiry).Msg("token expired")
				service.writer.WriteErrors(writer, http.StatusUnauthorized, schema.ErrTokenExpired)
				return
			}
			log.Warn().Err(err).Msg("token validation failed")
			service.writer.WriteErrors(writer, http.StatusUnauthorized, schema.ErrTokenInvalid)
			return
		}

		claims := identity.Claims{}
		if err := token.Claims(&claims); err != nil {
			log.Warn().Err(err).Msg("could not decode the token claims")
			service.writer.WriteErrors(writer, http.StatusUnauthorized, schema.ErrTokenInvalid)
			return
		}

		// Check the audience; public clients are accepted as the authorized party
		if !service.audienceAccepted(token.Audience, claims) {
			log.Warn().Strs("aud", token.Audience).Interface("azp", claims["azp"]).Str("expected", service.Config.OIDCClientID).Msg("invalid audience")
			service.writer.WriteErrors(writer, http.StatusUnauthorized, schema.ErrTokenInvalidAudience)
			return
		}
		log.Info().Str("sub", token.Subject).Strs("aud", token.Audience).Msg("token validated")

		// Delegate to the next handler
		request = request.WithContext(context.WithValue(request.Context(), contextKeyClaims, claims))
		next.ServeHTTP(writer, request)
	})
}

// MiddlewareRequireRole makes sure that the verified token carries the given realm role
func (service *Service) MiddlewareRequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			// Extract the verified claims
			claims, ok := claimsFromContext(request.Context())
			if !ok {
				service.writer.WriteInternalError(writer, errors.New("role check without token verification"))
				return
			}

			if !claims.HasRole(role) {
				service.writer.WriteErrors(writer, http.StatusForbidden, schema.ErrForbidden.WithDetails(map[string]any{
					"required_role": role,
				}))
				return
			}
			next.ServeHTTP(writer, request)
		})
	}
}

func (service *Service) audienceAccepted(audience []string, claims identity.Claims) bool {
	for _, aud := range audience {
		if aud == service.Config.OIDCClientID {
			return true
		}
	}
	azp, _ := claims["azp"].(string)
	return azp == service.Config.OIDCClientID
}

func claimsFromContext(ctx context.Context) (identity.Claims, bool) {
	claims, ok := ctx.Value(contextKeyClaims).(identity.Claims)
	return claims, ok
}

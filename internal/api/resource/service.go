package resource

import (
	"context"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	"github.com/skybi/session-portal/internal/api/schema"
	"github.com/skybi/session-portal/internal/config"
)

// Verifier verifies the signature, issuer and expiry of a raw bearer token
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*oidc.IDToken, error)
}

// Service represents the protected resource API service
type Service struct {
	server *http.Server

	Config *config.Config

	// Verifier is discovered from the configured issuer by Initialize if not set
	Verifier Verifier

	writer *schema.Writer
}

// Initialize discovers the identity provider's signing keys if no verifier has been set
func (service *Service) Initialize(ctx context.Context) error {
	if service.Verifier != nil {
		return nil
	}
	provider, err := oidc.NewProvider(ctx, service.Config.OIDCIssuerURL)
	if err != nil {
		return err
	}

	// The audience is checked manually as public clients receive tokens for other audiences
	service.Verifier = provider.Verifier(&oidc.Config{
		ClientID:             service.Config.OIDCClientID,
		SupportedSigningAlgs: service.Config.OIDCSigningAlgorithms,
		SkipClientIDCheck:    true,
	})
	return nil
}

// Handler builds the HTTP handler serving the resource API
func (service *Service) Handler() http.Handler {
	// Create the HTTP schema writer
	service.writer = &schema.Writer{
		InternalErrorHook: func(err error) {
			log.Error().Err(err).Msg("the resource API experienced an unexpected error")
		},
	}

	// Create the HTTP router
	router := chi.NewRouter()
	router.Use(middleware.RedirectSlashes)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{service.Config.ResourceAPIAllowedOrigin},
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))
	router.NotFound(func(writer http.ResponseWriter, _ *http.Request) {
		service.writer.WriteErrors(writer, http.StatusNotFound, schema.ErrNotFound)
	})
	router.MethodNotAllowed(func(writer http.ResponseWriter, _ *http.Request) {
		service.writer.WriteErrors(writer, http.StatusMethodNotAllowed, schema.ErrMethodNotAllowed)
	})

	// Register the API endpoint handlers
	service.registerEndpoints(router)
	return router
}

// Startup starts up the resource API
func (service *Service) Startup() error {
	if err := service.Initialize(context.Background()); err != nil {
		return err
	}

	server := &http.Server{
		Addr:    service.Config.ResourceAPIListenAddress,
		Handler: service.Handler(),
	}
	service.server = server
	return server.ListenAndServe()
}

// Shutdown shuts down the resource API
func (service *Service) Shutdown() {
	if service.server != nil {
		service.server.Close()
		service.server = nil
	}
}

func (service *Service) registerEndpoints(router chi.Router) {
	router.Get("/public", service.EndpointPublic)
	router.With(service.MiddlewareVerifyToken).Get("/protected", service.EndpointProtected)
	router.With(service.MiddlewareVerifyToken, service.MiddlewareRequireRole("admin")).Get("/admin", service.EndpointAdmin)
}

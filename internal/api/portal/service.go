package portal

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	"github.com/skybi/session-portal/internal/api/schema"
	"github.com/skybi/session-portal/internal/config"
	"github.com/skybi/session-portal/internal/identity"
	"github.com/skybi/session-portal/internal/identity/oidcclient"
	"github.com/skybi/session-portal/internal/supervisor"
)

// LoginCompleter completes the login flows the identity provider redirects back to the portal
type LoginCompleter interface {
	CompleteLogin(ctx context.Context, callback oidcclient.Callback) error
}

// instance is the part of a mounted supervisor the portal pages interact with
type instance interface {
	Claims() identity.Claims
	CallAPI(ctx context.Context, endpoint string) (any, error)
	Logout(ctx context.Context) error
}

var _ supervisor.Mounter = (*Service)(nil)

// Service represents the portal service rendering the identity view of the mounted supervisor
type Service struct {
	server *http.Server

	Config *config.Config

	Client LoginCompleter

	mtx     sync.RWMutex
	mounted instance

	writer *schema.Writer
}

// Mount makes the portal pages operate on the given supervisor
func (service *Service) Mount(supervisor *supervisor.Supervisor) {
	service.mount(supervisor)
}

// Unmount detaches the currently mounted supervisor
func (service *Service) Unmount() {
	service.mount(nil)
}

func (service *Service) mount(instance instance) {
	service.mtx.Lock()
	defer service.mtx.Unlock()
	service.mounted = instance
}

func (service *Service) current() instance {
	service.mtx.RLock()
	defer service.mtx.RUnlock()
	return service.mounted
}

// Handler builds the HTTP handler serving the portal
func (service *Service) Handler() http.Handler {
	// Create the HTTP schema writer
	service.writer = &schema.Writer{
		InternalErrorHook: func(err error) {
			log.Error().Err(err).Msg("the portal experienced an unexpected error")
		},
	}

	// Create the HTTP router
	router := chi.NewRouter()
	router.Use(middleware.RedirectSlashes)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{service.Config.PortalBaseAddress},
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
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

	// Register the page endpoints
	router.Get("/", service.EndpointIndex)
	router.Post("/call-api", service.EndpointCallAPI)
	router.Post("/logout", service.EndpointLogout)

	// Register the OIDC callback endpoint
	router.Get("/callback", service.EndpointCallback)
	return router
}

// Startup starts up the portal
func (service *Service) Startup() error {
	server := &http.Server{
		Addr:    service.Config.PortalListenAddress,
		Handler: service.Handler(),
	}
	service.server = server
	return server.ListenAndServe()
}

// Shutdown shuts down the portal
func (service *Service) Shutdown() {
	if service.server != nil {
		service.server.Close()
		service.server = nil
	}
}

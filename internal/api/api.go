package api

import (
	"errors"
	"net/http"

	"github.com/skybi/session-portal/internal/api/portal"
	"github.com/skybi/session-portal/internal/api/resource"
	"github.com/skybi/session-portal/internal/config"
	"github.com/skybi/session-portal/internal/supervisor"
)

var _ supervisor.Mounter = (*Service)(nil)

// Service represents the portal & resource API service
type Service struct {
	Config   *config.Config
	Client   portal.LoginCompleter
	portal   *portal.Service
	resource *resource.Service
}

// Startup starts up the portal & resource APIs
func (service *Service) Startup(errs chan<- error) {
	portalService := &portal.Service{
		Config: service.Config,
		Client: service.Client,
	}
	service.portal = portalService
	go func() {
		if err := portalService.Startup(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	if !service.Config.ResourceAPIEnabled {
		return
	}
	resourceService := &resource.Service{
		Config: service.Config,
	}
	service.resource = resourceService
	go func() {
		if err := resourceService.Startup(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
}

// Mount makes the portal operate on the given supervisor
func (service *Service) Mount(supervisor *supervisor.Supervisor) {
	if service.portal != nil {
		service.portal.Mount(supervisor)
	}
}

// Unmount detaches the supervisor currently mounted by the portal
func (service *Service) Unmount() {
	if service.portal != nil {
		service.portal.Unmount()
	}
}

// Shutdown shuts down the portal & resource APIs
func (service *Service) Shutdown() {
	if service.portal != nil {
		service.portal.Shutdown()
		service.portal = nil
	}
	if service.resource != nil {
		service.resource.Shutdown()
		service.resource = nil
	}
}

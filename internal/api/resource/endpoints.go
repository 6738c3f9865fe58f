package resource

import (
	"errors"
	"net/http"
)

// EndpointPublic handles the 'GET /public' endpoint
func (service *Service) EndpointPublic(writer http.ResponseWriter, _ *http.Request) {
	service.writer.WriteJSON(writer, map[string]any{
		"message": "This is public",
	})
}

// EndpointProtected handles the 'GET /protected' endpoint
func (service *Service) EndpointProtected(writer http.ResponseWriter, request *http.Request) {
	claims, ok := claimsFromContext(request.Context())
	if !ok {
		service.writer.WriteInternalError(writer, errors.New("protected endpoint without token verification"))
		return
	}

	var username any
	if value := claims.PreferredUsername(); value != "" {
		username = value
	}
	service.writer.WriteJSON(writer, map[string]any{
		"username": username,
		"roles":    claims.Roles(),
	})
}

// EndpointAdmin handles the 'GET /admin' endpoint
func (service *Service) EndpointAdmin(writer http.ResponseWriter, _ *http.Request) {
	service.writer.WriteJSON(writer, map[string]any{
		"message": "Welcome admin",
	})
}

package portal

import (
	"net/http"

	"github.com/skybi/session-portal/internal/api/validation"
	"github.com/skybi/session-portal/internal/identity/oidcclient"
)

// EndpointCallback handles the 'GET /callback' endpoint the identity provider redirects to after a login
func (service *Service) EndpointCallback(writer http.ResponseWriter, request *http.Request) {
	// Extract the callback parameters
	state, validationErr := validation.QueryString(request, "state", true)
	if validationErr != nil {
		service.writer.WriteErrors(writer, http.StatusBadRequest, validationErr)
		return
	}
	query := request.URL.Query()
	callback := oidcclient.Callback{
		State:            state,
		Code:             query.Get("code"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	// Complete the login flow
	if err := service.Client.CompleteLogin(request.Context(), callback); err != nil {
		service.writeLoginError(writer, err)
		return
	}
	http.Redirect(writer, request, "/", http.StatusFound)
}

package portal

import (
	"errors"
	"net/http"

	"github.com/skybi/session-portal/internal/api/schema"
	"github.com/skybi/session-portal/internal/identity"
)

func (service *Service) writeLoginError(writer http.ResponseWriter, err error) {
	if !errors.Is(err, identity.ErrLoginFailed) {
		service.writer.WriteInternalError(writer, err)
		return
	}
	service.writer.WriteErrors(writer, http.StatusBadRequest, schema.ErrLoginFailed.WithDetails(map[string]any{
		"reason": err.Error(),
	}))
}

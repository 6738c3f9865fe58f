package validation

import (
	"fmt"
	"net/http"

	"github.com/skybi/session-portal/internal/api/schema"
)

var errQueryParameterMissing = func(name string) *schema.Error {
	return &schema.Error{
		Type:    "validation.query.parameter.missing",
		Message: fmt.Sprintf("The query parameter '%s' is required but was not present in the request.", name),
		Details: map[string]any{
			"parameter": name,
		},
	}
}

// QueryString extracts a string value out of the query parameters of the given request
func QueryString(request *http.Request, key string, required bool) (string, *schema.Error) {
	value := request.URL.Query().Get(key)
	if value == "" && required {
		return "", errQueryParameterMissing(key)
	}
	return value, nil
}

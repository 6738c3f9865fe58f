package portal

import (
	"bytes"
	"html/template"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>Session portal</title>
</head>
<body>
  <p>User: {{.User}}</p>
  <p>Roles: {{.Roles}}</p>
  <form method="post" action="/call-api"><button type="submit">Call API</button></form>
  <form method="post" action="/logout"><button type="submit">Logout</button></form>
</body>
</html>
`))

var signingInTemplate = template.Must(template.New("signing-in").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>Session portal</title>
  <meta http-equiv="refresh" content="{{.RetryAfter}}">
</head>
<body>
  <p>Signing in...</p>
</body>
</html>
`))

const signingInRetryAfter = "2"

type indexView struct {
	User  string
	Roles string
}

// EndpointIndex handles the 'GET /' endpoint
func (service *Service) EndpointIndex(writer http.ResponseWriter, _ *http.Request) {
	instance := service.current()
	if instance == nil {
		writer.Header().Set("Retry-After", signingInRetryAfter)
		service.render(writer, http.StatusServiceUnavailable, signingInTemplate, map[string]string{
			"RetryAfter": signingInRetryAfter,
		})
		return
	}

	claims := instance.Claims()
	service.render(writer, http.StatusOK, indexTemplate, indexView{
		User:  claims.PreferredUsername(),
		Roles: strings.Join(claims.Roles(), ", "),
	})
}

// EndpointCallAPI handles the 'POST /call-api' endpoint
func (service *Service) EndpointCallAPI(writer http.ResponseWriter, request *http.Request) {
	if instance := service.current(); instance == nil {
		log.Warn().Msg("an API call was requested before a session was available")
	} else if _, err := instance.CallAPI(request.Context(), service.Config.ProtectedEndpoint()); err != nil {
		log.Error().Err(err).Msg("the API call failed")
	}
	http.Redirect(writer, request, "/", http.StatusSeeOther)
}

// EndpointLogout handles the 'POST /logout' endpoint
func (service *Service) EndpointLogout(writer http.ResponseWriter, request *http.Request) {
	if instance := service.current(); instance == nil {
		log.Warn().Msg("a logout was requested before a session was available")
	} else if err := instance.Logout(request.Context()); err != nil {
		log.Warn().Err(err).Msg("the logout failed")
	}
	http.Redirect(writer, request, "/", http.StatusSeeOther)
}

func (service *Service) render(writer http.ResponseWriter, status int, tmpl *template.Template, data any) {
	buffer := new(bytes.Buffer)
	if err := tmpl.Execute(buffer, data); err != nil {
		service.writer.WriteInternalError(writer, err)
		return
	}
	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	writer.WriteHeader(status)
	writer.Write(buffer.Bytes())
}

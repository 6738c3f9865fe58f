package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/skybi/session-portal/internal/identity"
)

// CallAPI issues an authenticated GET request to the given endpoint and returns the decoded JSON body unchanged.
// Non-2xx responses and transport failures are returned as *APICallError; the decoded body is logged either way.
func (supervisor *Supervisor) CallAPI(ctx context.Context, endpoint string) (any, error) {
	if supervisor.State().Terminal() {
		return nil, ErrTerminated
	}

	body, err := supervisor.call(ctx, endpoint)
	var callErr *APICallError
	if supervisor.options.RetryPolicy == RetryRefreshOnce && errors.As(err, &callErr) && callErr.Status == http.StatusUnauthorized {
		log.Info().Str("endpoint", endpoint).Msg("the API rejected the access token; refreshing and retrying once")
		if _, refreshErr := supervisor.Refresh(ctx, identity.ForceRefresh); refreshErr != nil {
			return nil, err
		}
		body, err = supervisor.call(ctx, endpoint)
	}
	return body, err
}

func (supervisor *Supervisor) call(ctx context.Context, endpoint string) (any, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &APICallError{Endpoint: endpoint, Err: err}
	}
	request.Header.Set("Authorization", "Bearer "+supervisor.client.Token())
	request.Header.Set("Accept", "application/json")

	response, err := supervisor.options.HTTPClient.Do(request)
	if err != nil {
		log.Error().Err(err).Str("endpoint", endpoint).Msg("the API call failed")
		return nil, &APICallError{Endpoint: endpoint, Err: err}
	}
	defer response.Body.Close()

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, &APICallError{Endpoint: endpoint, Status: response.StatusCode, Err: err}
	}
	body, invalid := decodeBody(raw)

	success := response.StatusCode >= 200 && response.StatusCode < 300
	event := log.Info()
	if !success {
		event = log.Warn()
	}
	event.Str("endpoint", endpoint).Int("status", response.StatusCode).Interface("body", body).Msg("API response")

	if !success {
		return nil, &APICallError{Endpoint: endpoint, Status: response.StatusCode, Body: body}
	}
	if invalid {
		return nil, &APICallError{Endpoint: endpoint, Status: response.StatusCode, Body: body, Err: errors.New("response body is not valid JSON")}
	}
	return body, nil
}

// decodeBody decodes a JSON response body keeping numbers as json.Number.
// Bodies that are not a single JSON value are returned as plain text and reported as invalid.
func decodeBody(raw []byte) (any, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, false
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var body any
	if err := decoder.Decode(&body); err != nil {
		return string(raw), true
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return string(raw), true
	}
	return body, false
}

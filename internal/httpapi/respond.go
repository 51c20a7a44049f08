package httpapi

import (
	"errors"
	"net/http"

	json "github.com/goccy/go-json"

	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
)

const maxBodyBytes = 64 << 10

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

var encodeFailure = []byte(`{"error":{"code":"internal","message":"response encoding failed"}}`)

func (a *API) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(v)
	if err != nil {
		a.logger.Error().Err(err).Int("status", status).Msg("encode response failed")

		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(encodeFailure)

		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func (a *API) respondError(w http.ResponseWriter, status int, code, message string) {
	a.respondJSON(w, status, errorResponse{Error: apiError{Code: code, Message: message}})
}

// respondErr maps domain errors onto status codes.
func (a *API) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coreerrors.ErrInvalidInput),
		errors.Is(err, coreerrors.ErrInvalidID),
		errors.Is(err, coreerrors.ErrInvalidWeek),
		errors.Is(err, coreerrors.ErrNoPlatforms):
		a.respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, coreerrors.ErrNotFound):
		a.respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, coreerrors.ErrCoordinatorStopped):
		a.respondError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		a.respondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.Join(coreerrors.ErrInvalidInput, err)
	}

	return nil
}

package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
	"github.com/lueurxax/artist-pulse/internal/preferences"
)

// UserIDHeader carries the caller's user id. Authentication happens upstream.
const UserIDHeader = "X-User-ID"

type userKey struct{}

type preferencesResponse struct {
	EntityID       string   `json:"entity_id"`
	HiddenSections []string `json:"hidden_sections"`
}

type toggleRequest struct {
	Key string `json:"key"`
}

type toggleResponse struct {
	preferencesResponse
	Key     string `json:"key"`
	Visible bool   `json:"visible"`
}

func (a *API) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(UserIDHeader))

		id, err := uuid.Parse(raw)
		if err != nil {
			a.respondErr(w, fmt.Errorf("%s header %q: %w", UserIDHeader, raw, coreerrors.ErrInvalidID))

			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, id.String())))
	})
}

func userFrom(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)

	return id
}

func (a *API) store(w http.ResponseWriter, r *http.Request) (*preferences.Store, bool) {
	s, err := a.prefs.Get(r.Context(), userFrom(r.Context()), chi.URLParam(r, "entityID"))
	if err != nil {
		a.logger.Warn().Err(err).Str("user_id", userFrom(r.Context())).Msg("load preferences failed")
		a.respondErr(w, err)

		return nil, false
	}

	return s, true
}

func view(entityID string, s *preferences.Store) preferencesResponse {
	return preferencesResponse{EntityID: entityID, HiddenSections: s.HiddenSections()}
}

func (a *API) getPreferences(w http.ResponseWriter, r *http.Request) {
	s, ok := a.store(w, r)
	if !ok {
		return
	}

	a.respondJSON(w, http.StatusOK, view(chi.URLParam(r, "entityID"), s))
}

func (a *API) toggleSection(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decodeBody(r, &req); err != nil {
		a.respondErr(w, err)

		return
	}

	if strings.TrimSpace(req.Key) == "" {
		a.respondErr(w, fmt.Errorf("section key: %w", coreerrors.ErrInvalidInput))

		return
	}

	s, ok := a.store(w, r)
	if !ok {
		return
	}

	visible := s.ToggleSection(req.Key)

	a.respondJSON(w, http.StatusOK, toggleResponse{
		preferencesResponse: view(chi.URLParam(r, "entityID"), s),
		Key:                 req.Key,
		Visible:             visible,
	})
}

func (a *API) resetPreferences(w http.ResponseWriter, r *http.Request) {
	s, ok := a.store(w, r)
	if !ok {
		return
	}

	s.ResetToDefault()

	a.respondJSON(w, http.StatusOK, view(chi.URLParam(r, "entityID"), s))
}

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lueurxax/artist-pulse/internal/report"
)

// getReport resolves the weekly report of {artist}; ?week selects the week end.
func (a *API) getReport(w http.ResponseWriter, r *http.Request) {
	q, err := report.NewQuery(chi.URLParam(r, "artist"), r.URL.Query().Get("week"))
	if err != nil {
		a.respondErr(w, err)

		return
	}

	rep := a.reports.ResolveQuery(r.Context(), q)
	if rep == nil {
		a.respondError(w, http.StatusNotFound, "not_found", "no report for "+q.Term)

		return
	}

	a.respondJSON(w, http.StatusOK, rep)
}

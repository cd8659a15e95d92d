package httpapi

import (
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/voicelead/calltrack/internal/model"
	"github.com/voicelead/calltrack/internal/store"
)

// TrackingSourcesHandler lists a tenant's attribution records, most
// recently called first.
func TrackingSourcesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := r.URL.Query().Get("organization_id")
		if orgID == "" {
			writeError(w, http.StatusBadRequest, "organization_id is required")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		sources, err := st.ListTrackingSources(r.Context(), orgID, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list tracking sources")
			return
		}
		if sources == nil {
			sources = []model.TrackingSource{}
		}
		writeJSON(w, http.StatusOK, sources)
	}
}

// GetNumberHandler serves the website snippet: it returns the tenant's
// active generic tracking number and registers the visitor's attribution
// so the eventual call can be joined to the ad click.
func GetNumberHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		orgID := q.Get("organization_id")
		if orgID == "" {
			writeError(w, http.StatusBadRequest, "organization_id is required")
			return
		}

		number, err := st.ActiveGenericTrackingNumber(r.Context(), orgID)
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "no active tracking number")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load tracking number")
			return
		}

		attr := model.Attribution{
			Campaign:    q.Get("campaign"),
			UTMSource:   q.Get("utm_source"),
			UTMMedium:   q.Get("utm_medium"),
			UTMCampaign: q.Get("utm_campaign"),
			UTMContent:  q.Get("utm_content"),
			UTMTerm:     q.Get("utm_term"),
			GCLID:       q.Get("gclid"),
		}
		if !attr.Empty() {
			if _, err := st.FindOrCreateTrackingSource(r.Context(), trackingSource(number, attr, orgID)); err != nil {
				zap.L().Error("snippet attribution registration failed", zap.Error(err))
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"tracking_number": number})
	}
}

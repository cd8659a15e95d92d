package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/voicelead/calltrack/internal/analysis"
	"github.com/voicelead/calltrack/internal/model"
	"github.com/voicelead/calltrack/internal/store"
)

const analyzeTimeout = 5 * time.Minute

// ListCallsHandler lists a tenant's calls, newest first.
func ListCallsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		orgID := q.Get("organization_id")
		if orgID == "" {
			writeError(w, http.StatusBadRequest, "organization_id is required")
			return
		}
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		calls, err := st.ListCalls(r.Context(), store.CallFilter{
			OrganizationID: orgID,
			Status:         model.CallStatus(q.Get("status")),
			Limit:          limit,
			Offset:         offset,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list calls")
			return
		}
		if calls == nil {
			calls = []model.Call{}
		}
		writeJSON(w, http.StatusOK, calls)
	}
}

// TagCallHandler sets a call's tag manually. The value must come from
// the closed vocabulary.
func TagCallHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Tag string `json:"tag"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		tag, err := model.ParseTag(payload.Tag)
		if err != nil {
			writeError(w, http.StatusBadRequest, "tag not in vocabulary")
			return
		}

		if err := st.UpdateCallTag(r.Context(), chi.URLParam(r, "call_sid"), tag); err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "call not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to tag call")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// AnalyzeCallHandler kicks off post-call analysis and returns 202; the
// pipeline runs detached and its result lands in the analysis table.
func AnalyzeCallHandler(pipe *analysis.Pipeline, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pipe == nil {
			writeError(w, http.StatusServiceUnavailable, "analysis is not configured")
			return
		}
		callSID := chi.URLParam(r, "call_sid")

		if _, err := st.GetCall(r.Context(), callSID); err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "call not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load call")
			return
		}

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), analyzeTimeout)
			defer cancel()
			if _, err := pipe.Analyze(ctx, callSID); err != nil {
				zap.L().Error("analysis run failed",
					zap.String("call_sid", callSID),
					zap.Error(err),
				)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"call_sid": callSID,
			"status":   "accepted",
		})
	}
}

// GetAnalysisHandler returns the stored analysis for a call.
func GetAnalysisHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := st.GetAnalysis(r.Context(), chi.URLParam(r, "call_sid"))
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "analysis not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load analysis")
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// SummaryHandler aggregates tenant call counts for the dashboard.
func SummaryHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := r.URL.Query().Get("organization_id")
		if orgID == "" {
			writeError(w, http.StatusBadRequest, "organization_id is required")
			return
		}
		summary, err := st.Summary(r.Context(), orgID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to aggregate summary")
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

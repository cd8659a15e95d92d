package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/voicelead/calltrack/internal/crm"
	"github.com/voicelead/calltrack/internal/model"
	"github.com/voicelead/calltrack/internal/store"
)

// CreateLeadHandler creates a manual lead through the reconciler, so it
// follows the same contact/deal rules as an inbound call.
func CreateLeadHandler(reconciler *crm.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			PhoneNumber    string `json:"phone_number"`
			Name           string `json:"name"`
			Email          string `json:"email"`
			OrganizationID string `json:"organization_id"`
			CreatedBy      string `json:"created_by"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if payload.OrganizationID == "" {
			writeError(w, http.StatusBadRequest, "organization_id is required")
			return
		}

		deal, err := reconciler.CreateManualLead(r.Context(), crm.ManualLead{
			PhoneNumber:    payload.PhoneNumber,
			Name:           payload.Name,
			Email:          payload.Email,
			OrganizationID: payload.OrganizationID,
			CreatedBy:      payload.CreatedBy,
		})
		if err != nil {
			if eris.Is(err, model.ErrInvalidPhone) {
				writeError(w, http.StatusBadRequest, "invalid phone_number")
				return
			}
			if eris.Is(err, store.ErrDuplicate) {
				writeError(w, http.StatusConflict, "contact already has an open deal")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to create lead")
			return
		}
		writeJSON(w, http.StatusCreated, deal)
	}
}

// UpdateContactHandler applies a contact edit. Phone edits on
// automatically created contacts are rejected with 422 while the other
// fields still apply.
func UpdateContactHandler(reconciler *crm.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			PhoneNumber       *string `json:"phone_number"`
			Name              *string `json:"name"`
			Email             *string `json:"email"`
			ContactPreference *string `json:"contact_preference"`
			UpdatedBy         string  `json:"updated_by"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}

		contact, err := reconciler.UpdateContactDetails(r.Context(), chi.URLParam(r, "id"), crm.ContactEdit{
			PhoneNumber:       payload.PhoneNumber,
			Name:              payload.Name,
			Email:             payload.Email,
			ContactPreference: payload.ContactPreference,
		}, payload.UpdatedBy)
		if err != nil {
			switch {
			case eris.Is(err, crm.ErrPhoneImmutable):
				// Partial application: report the rejection but include
				// whatever state the contact ended up in.
				writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
					"error":   "phone number is immutable on non-manual contacts",
					"contact": contact,
				})
			case eris.Is(err, store.ErrNotFound):
				writeError(w, http.StatusNotFound, "contact not found")
			case eris.Is(err, model.ErrInvalidPhone):
				writeError(w, http.StatusBadRequest, "invalid phone_number")
			default:
				writeError(w, http.StatusInternalServerError, "failed to update contact")
			}
			return
		}
		writeJSON(w, http.StatusOK, contact)
	}
}

// ListStagesHandler returns the tenant's pipeline stages in board order.
func ListStagesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID := r.URL.Query().Get("organization_id")
		if orgID == "" {
			writeError(w, http.StatusBadRequest, "organization_id is required")
			return
		}
		stages, err := st.ListStages(r.Context(), orgID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list stages")
			return
		}
		if stages == nil {
			stages = []model.PipelineStage{}
		}
		writeJSON(w, http.StatusOK, stages)
	}
}

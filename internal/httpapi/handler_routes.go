package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/voicelead/calltrack/internal/model"
	"github.com/voicelead/calltrack/internal/store"
)

type routePayload struct {
	TrackingNumber    string  `json:"tracking_number"`
	DestinationNumber string  `json:"destination_number"`
	Campaign          *string `json:"campaign"`
	OrganizationID    string  `json:"organization_id"`
}

// ListRoutesHandler lists routes, optionally filtered by tenant, campaign
// and active flag.
func ListRoutesHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		routes, err := st.ListRoutes(r.Context(), store.RouteFilter{
			OrganizationID: q.Get("organization_id"),
			Campaign:       q.Get("campaign"),
			ActiveOnly:     q.Get("active") == "true",
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list routes")
			return
		}
		if routes == nil {
			routes = []model.Route{}
		}
		writeJSON(w, http.StatusOK, routes)
	}
}

// CreateRouteHandler creates a route after normalizing both phone
// numbers. A second active generic route for the same tracking number is
// rejected with 409.
func CreateRouteHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload routePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}

		tracking, err := model.NormalizePhone(payload.TrackingNumber)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid tracking_number")
			return
		}
		destination, err := model.NormalizePhone(payload.DestinationNumber)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid destination_number")
			return
		}
		if payload.OrganizationID == "" {
			writeError(w, http.StatusBadRequest, "organization_id is required")
			return
		}

		route, err := st.CreateRoute(r.Context(), model.Route{
			TrackingNumber:    tracking,
			DestinationNumber: destination,
			Campaign:          payload.Campaign,
			IsActive:          true,
			OrganizationID:    payload.OrganizationID,
		})
		if err != nil {
			if eris.Is(err, store.ErrDuplicate) {
				writeError(w, http.StatusConflict, "an active generic route already exists for this tracking number")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to create route")
			return
		}
		writeJSON(w, http.StatusCreated, route)
	}
}

func GetRouteHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		route, err := st.GetRoute(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "route not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load route")
			return
		}
		writeJSON(w, http.StatusOK, route)
	}
}

// UpdateRouteHandler applies a partial update; absent fields are left
// untouched.
func UpdateRouteHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			DestinationNumber *string `json:"destination_number"`
			Campaign          *string `json:"campaign"`
			IsActive          *bool   `json:"is_active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if payload.DestinationNumber != nil {
			normalized, err := model.NormalizePhone(*payload.DestinationNumber)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid destination_number")
				return
			}
			payload.DestinationNumber = &normalized
		}

		route, err := st.UpdateRoute(r.Context(), chi.URLParam(r, "id"),
			payload.DestinationNumber, payload.Campaign, payload.IsActive)
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "route not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to update route")
			return
		}
		writeJSON(w, http.StatusOK, route)
	}
}

// DeleteRouteHandler soft-deactivates a route.
func DeleteRouteHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.DeactivateRoute(r.Context(), chi.URLParam(r, "id")); err != nil {
			if eris.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "route not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to deactivate route")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/voicelead/calltrack/internal/twiml"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeTwiML always answers 200: the provider executes whatever document
// it gets, and a non-200 would make it retry or play its own error.
func writeTwiML(w http.ResponseWriter, resp *twiml.Response) {
	body, err := resp.Render()
	if err != nil {
		zap.L().Error("render voice document", zap.Error(err))
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

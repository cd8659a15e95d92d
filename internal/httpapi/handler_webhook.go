package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/voicelead/calltrack/internal/config"
	"github.com/voicelead/calltrack/internal/crm"
	"github.com/voicelead/calltrack/internal/ledger"
	"github.com/voicelead/calltrack/internal/model"
	"github.com/voicelead/calltrack/internal/routing"
	"github.com/voicelead/calltrack/internal/store"
	"github.com/voicelead/calltrack/internal/twiml"
)

const (
	msgNoDestination = "Desculpe, número não configurado."
	msgSystemError   = "Erro no sistema. Tente mais tarde."
	msgCallDropped   = "A ligação caiu. Tente novamente."
)

const reconcileTimeout = 15 * time.Second

// CallWebhookHandler answers the provider's inbound-call webhook. Every
// business outcome, including a missing route and internal failure,
// returns 200 with a voice document; only the signature middleware ever
// rejects.
func CallWebhookHandler(cfg *config.Config, resolver *routing.Resolver, led *ledger.Ledger, reconciler *crm.Reconciler, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		callSID := r.Form.Get("CallSid")
		fromNumber := r.Form.Get("From")
		toNumber := r.Form.Get("To")
		callStatus := r.Form.Get("CallStatus")

		// Attribution rides on the webhook URL's query string, configured
		// per ad campaign on the provider side.
		q := r.URL.Query()
		attr := model.Attribution{
			Campaign:    q.Get("campaign"),
			UTMSource:   q.Get("utm_source"),
			UTMMedium:   q.Get("utm_medium"),
			UTMCampaign: q.Get("utm_campaign"),
			UTMContent:  q.Get("utm_content"),
			UTMTerm:     q.Get("utm_term"),
			GCLID:       q.Get("gclid"),
		}

		zap.L().Info("inbound call",
			zap.String("call_sid", callSID),
			zap.String("from", fromNumber),
			zap.String("to", toNumber),
		)

		resolution, err := resolver.Resolve(r.Context(), toNumber, attr.Campaign)
		if err != nil {
			if eris.Is(err, routing.ErrNoRoute) {
				zap.L().Warn("no destination for tracking number",
					zap.String("call_sid", callSID),
					zap.String("to", toNumber),
				)
				writeTwiML(w, twiml.NewSayHangup(cfg.Twilio.Voice, cfg.Twilio.Language, msgNoDestination))
				return
			}
			zap.L().Error("route resolution failed",
				zap.String("call_sid", callSID),
				zap.Error(err),
			)
			writeTwiML(w, twiml.NewSayHangup(cfg.Twilio.Voice, cfg.Twilio.Language, msgSystemError))
			return
		}

		// Attribution and call logging are best-effort: a tracking or
		// ledger failure must not break the phone call.
		var trackingSourceID string
		if !attr.Empty() {
			src, err := st.FindOrCreateTrackingSource(r.Context(), trackingSource(toNumber, attr, resolution.OrganizationID))
			if err != nil {
				zap.L().Error("tracking source registration failed",
					zap.String("call_sid", callSID),
					zap.Error(err),
				)
			} else {
				trackingSourceID = src.ID
			}
		}

		if err := led.RecordInbound(r.Context(), ledger.InboundCall{
			CallSID:           callSID,
			FromNumber:        fromNumber,
			ToNumber:          toNumber,
			DestinationNumber: resolution.DestinationNumber,
			Status:            model.NormalizeCallStatus(callStatus),
			Campaign:          attr.EffectiveCampaign(),
			TrackingSourceID:  trackingSourceID,
			OrganizationID:    resolution.OrganizationID,
		}); err != nil {
			zap.L().Error("call ledger insert failed",
				zap.String("call_sid", callSID),
				zap.Error(err),
			)
		}

		// CRM reconciliation runs detached from the webhook: the caller
		// gets bridged regardless of pipeline state.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), reconcileTimeout)
			defer cancel()
			if err := reconciler.HandleInboundCall(ctx, crm.CallEvent{
				CallSID:        callSID,
				FromNumber:     fromNumber,
				ToNumber:       toNumber,
				OrganizationID: resolution.OrganizationID,
			}); err != nil {
				zap.L().Error("crm reconciliation failed",
					zap.String("call_sid", callSID),
					zap.Error(err),
				)
			}
		}()

		writeTwiML(w, twiml.NewDial(twiml.DialOptions{
			DestinationNumber:    resolution.DestinationNumber,
			CallerID:             fromNumber,
			ActionURL:            callbackURL(cfg.Server.BaseURL, "/webhook/call-status"),
			StatusCallbackURL:    callbackURL(cfg.Server.BaseURL, "/webhook/call-status"),
			RecordingCallbackURL: callbackURL(cfg.Server.BaseURL, "/webhook/recording"),
			DroppedMessage:       msgCallDropped,
			Voice:                cfg.Twilio.Voice,
			Language:             cfg.Twilio.Language,
		}))
	}
}

// CallStatusHandler records lifecycle callbacks. The provider retries on
// non-2xx, so ledger failures are logged and acknowledged anyway.
func CallStatusHandler(led *ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		callSID := r.Form.Get("CallSid")
		if callSID == "" {
			writeError(w, http.StatusBadRequest, "CallSid is required")
			return
		}
		duration, _ := strconv.Atoi(r.Form.Get("CallDuration"))

		if err := led.RecordStatus(r.Context(), callSID, r.Form.Get("CallStatus"), duration); err != nil {
			zap.L().Error("status callback failed",
				zap.String("call_sid", callSID),
				zap.Error(err),
			)
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// RecordingHandler records recording callbacks with the same
// always-acknowledge contract as CallStatusHandler.
func RecordingHandler(led *ledger.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		callSID := r.Form.Get("CallSid")
		if callSID == "" {
			writeError(w, http.StatusBadRequest, "CallSid is required")
			return
		}
		duration, _ := strconv.Atoi(r.Form.Get("RecordingDuration"))

		if err := led.RecordRecording(r.Context(), callSID,
			r.Form.Get("RecordingUrl"), r.Form.Get("RecordingSid"), duration); err != nil {
			zap.L().Error("recording callback failed",
				zap.String("call_sid", callSID),
				zap.Error(err),
			)
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

func trackingSource(trackingNumber string, attr model.Attribution, organizationID string) model.TrackingSource {
	src := model.TrackingSource{
		TrackingNumber: trackingNumber,
		OrganizationID: organizationID,
	}
	setIfPresent := func(dst **string, val string) {
		if val != "" {
			*dst = &val
		}
	}
	setIfPresent(&src.UTMSource, attr.UTMSource)
	setIfPresent(&src.UTMMedium, attr.UTMMedium)
	setIfPresent(&src.UTMCampaign, attr.EffectiveCampaign())
	setIfPresent(&src.UTMContent, attr.UTMContent)
	setIfPresent(&src.UTMTerm, attr.UTMTerm)
	setIfPresent(&src.GCLID, attr.GCLID)
	return src
}

func callbackURL(baseURL, path string) string {
	if baseURL == "" {
		return path
	}
	return baseURL + path
}

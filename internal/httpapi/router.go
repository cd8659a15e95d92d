// Package httpapi exposes the telephony webhooks and the dashboard REST
// API over a chi router.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/voicelead/calltrack/internal/analysis"
	"github.com/voicelead/calltrack/internal/config"
	"github.com/voicelead/calltrack/internal/crm"
	"github.com/voicelead/calltrack/internal/ledger"
	"github.com/voicelead/calltrack/internal/routing"
	"github.com/voicelead/calltrack/internal/store"
)

// Deps bundles the components the router serves.
type Deps struct {
	Store      store.Store
	Resolver   *routing.Resolver
	Ledger     *ledger.Ledger
	Reconciler *crm.Reconciler
	Pipeline   *analysis.Pipeline
}

// NewRouter assembles the full HTTP surface.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(LoggingMiddleware)
	r.Use(RecoverMiddleware)

	r.Get("/health", HealthHandler(deps.Store))

	// Telephony webhooks. The provider signs every request; business
	// outcomes always answer 200 with a voice document.
	r.Route("/webhook", func(wh chi.Router) {
		wh.Use(TwilioAuth(cfg.Twilio))
		callHandler := CallWebhookHandler(cfg, deps.Resolver, deps.Ledger, deps.Reconciler, deps.Store)
		wh.Post("/call", callHandler)
		wh.Get("/call", callHandler)
		wh.Post("/call-status", CallStatusHandler(deps.Ledger))
		wh.Post("/recording", RecordingHandler(deps.Ledger))
	})

	// Dashboard REST API.
	r.Route("/api", func(api chi.Router) {
		api.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.API.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-API-Key"},
		}))
		api.Use(APIKeyAuth(cfg.API.Keys))

		api.Route("/routing", func(rt chi.Router) {
			rt.Get("/", ListRoutesHandler(deps.Store))
			rt.Post("/", CreateRouteHandler(deps.Store))
			rt.Get("/{id}", GetRouteHandler(deps.Store))
			rt.Patch("/{id}", UpdateRouteHandler(deps.Store))
			rt.Delete("/{id}", DeleteRouteHandler(deps.Store))
		})

		api.Route("/tracking", func(tr chi.Router) {
			tr.Get("/sources", TrackingSourcesHandler(deps.Store))
			tr.Get("/get-number", GetNumberHandler(deps.Store))
		})

		api.Route("/calls", func(calls chi.Router) {
			calls.Get("/", ListCallsHandler(deps.Store))
			calls.Post("/{call_sid}/tag", TagCallHandler(deps.Store))
			calls.Post("/{call_sid}/analyze", AnalyzeCallHandler(deps.Pipeline, deps.Store))
			calls.Get("/{call_sid}/analysis", GetAnalysisHandler(deps.Store))
		})

		api.Post("/leads", CreateLeadHandler(deps.Reconciler))
		api.Patch("/contacts/{id}", UpdateContactHandler(deps.Reconciler))
		api.Get("/stages", ListStagesHandler(deps.Store))

		api.Get("/analytics/summary", SummaryHandler(deps.Store))
	})

	return r
}

// Package store persists the call-tracking CRM entities in Postgres.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/voicelead/calltrack/internal/model"
)

// Sentinel errors surfaced by store operations.
var (
	// ErrNotFound means the row does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrDuplicate means an insert hit a unique constraint. Callers that
	// find-or-create re-fetch on this instead of failing.
	ErrDuplicate = eris.New("store: duplicate key")
)

// CallFilter specifies criteria for listing calls. OrganizationID is
// mandatory: calls are never listed across tenants.
type CallFilter struct {
	OrganizationID string           `json:"organization_id"`
	Status         model.CallStatus `json:"status,omitempty"`
	Since          *time.Time       `json:"since,omitempty"`
	Limit          int              `json:"limit,omitempty"`
	Offset         int              `json:"offset,omitempty"`
}

// RouteFilter specifies criteria for listing routes.
type RouteFilter struct {
	OrganizationID string `json:"organization_id,omitempty"`
	Campaign       string `json:"campaign,omitempty"`
	ActiveOnly     bool   `json:"active_only,omitempty"`
}

// ContactUpdate carries the mutable contact fields. A nil field is left
// untouched; a set field is written as-is. Present-with-null is expressed
// by pointing at the zero value.
type ContactUpdate struct {
	PhoneNumber       *string
	Name              *string
	Email             *string
	ContactPreference *string
}

// AnalyticsSummary aggregates per-tenant call counts for the dashboard.
type AnalyticsSummary struct {
	TotalCalls     int     `json:"total_calls"`
	CompletedCalls int     `json:"completed_calls"`
	RecordedCalls  int     `json:"recorded_calls"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Store is the persistence interface for the webhook server and pipelines.
type Store interface {
	// Routes
	ActiveRoutes(ctx context.Context, trackingNumber string) ([]model.Route, error)
	CreateRoute(ctx context.Context, route model.Route) (*model.Route, error)
	GetRoute(ctx context.Context, id string) (*model.Route, error)
	UpdateRoute(ctx context.Context, id string, destination *string, campaign *string, isActive *bool) (*model.Route, error)
	DeactivateRoute(ctx context.Context, id string) error
	ListRoutes(ctx context.Context, filter RouteFilter) ([]model.Route, error)
	ActiveGenericTrackingNumber(ctx context.Context, organizationID string) (string, error)

	// Calls
	InsertCall(ctx context.Context, call model.Call) (inserted bool, err error)
	UpdateCallStatus(ctx context.Context, callSID string, status model.CallStatus, durationSeconds int) error
	UpdateCallRecording(ctx context.Context, callSID, recordingURL, recordingSID string, durationSeconds int) error
	UpdateCallTag(ctx context.Context, callSID string, tag model.Tag) error
	UpdateCallTagIfUnset(ctx context.Context, callSID string, tag model.Tag) (applied bool, err error)
	GetCall(ctx context.Context, callSID string) (*model.Call, error)
	ListCalls(ctx context.Context, filter CallFilter) ([]model.Call, error)

	// Tracking sources
	FindOrCreateTrackingSource(ctx context.Context, src model.TrackingSource) (*model.TrackingSource, error)
	ListTrackingSources(ctx context.Context, organizationID string, limit int) ([]model.TrackingSource, error)

	// Contacts
	GetContactByPhone(ctx context.Context, phone, organizationID string) (*model.Contact, error)
	CreateContact(ctx context.Context, contact model.Contact) (*model.Contact, error)
	GetContact(ctx context.Context, id string) (*model.Contact, error)
	UpdateContact(ctx context.Context, id string, update ContactUpdate) (*model.Contact, error)

	// Pipeline stages
	DefaultStage(ctx context.Context, organizationID string) (*model.PipelineStage, error)
	ListStages(ctx context.Context, organizationID string) ([]model.PipelineStage, error)

	// Deals
	OpenDealForContact(ctx context.Context, contactID, organizationID string) (*model.Deal, error)
	CreateDeal(ctx context.Context, deal model.Deal) (*model.Deal, error)
	MoveDealToStage(ctx context.Context, dealID, stageID string, at time.Time) error
	GetDeal(ctx context.Context, id string) (*model.Deal, error)

	// Timeline
	AppendEvent(ctx context.Context, event model.TimelineEvent) (*model.TimelineEvent, error)

	// Analysis
	InsertAnalysis(ctx context.Context, analysis model.AIAnalysis) (*model.AIAnalysis, error)
	GetAnalysis(ctx context.Context, callSID string) (*model.AIAnalysis, error)

	// Analytics
	Summary(ctx context.Context, organizationID string) (*AnalyticsSummary, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

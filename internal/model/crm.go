package model

import "time"

// Contact is a person identified by phone number within an organization.
// phone_number is the natural key for automatically created contacts and
// is immutable unless IsManual is true.
type Contact struct {
	ID                string     `json:"id"`
	PhoneNumber       string     `json:"phone_number"`
	Name              string     `json:"name"`
	Email             *string    `json:"email,omitempty"`
	ContactPreference *string    `json:"contact_preference,omitempty"`
	IsManual          bool       `json:"is_manual"`
	OrganizationID    string     `json:"organization_id"`
	CreatedAt         time.Time  `json:"created_at"`
	LastActivityAt    *time.Time `json:"last_activity_at,omitempty"`
}

// PipelineStage is an ordered Kanban column. Exactly one stage per
// organization is the default ("inbox") where new and reactivated deals land.
type PipelineStage struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Position       int    `json:"position"`
	Color          string `json:"color"`
	IsDefault      bool   `json:"is_default"`
	OrganizationID string `json:"organization_id"`
}

// DealStatus is the open/closed state of a pipeline card.
type DealStatus string

const (
	DealStatusOpen   DealStatus = "OPEN"
	DealStatusClosed DealStatus = "CLOSED"
)

// DealSource records how a deal entered the pipeline.
type DealSource string

const (
	DealSourceVoice  DealSource = "voice"
	DealSourceManual DealSource = "manual"
)

// Deal is a Kanban pipeline card. At most one OPEN deal exists per
// (contact, organization); a new call reactivates the open deal instead of
// creating a second one.
type Deal struct {
	ID             string     `json:"id"`
	ContactID      string     `json:"contact_id"`
	StageID        string     `json:"stage_id"`
	Status         DealStatus `json:"status"`
	Title          string     `json:"title"`
	Source         DealSource `json:"source"`
	OrganizationID string     `json:"organization_id"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// EventType classifies timeline entries.
type EventType string

const (
	EventCallInbound  EventType = "CALL_INBOUND"
	EventSystem       EventType = "SYSTEM"
	EventManualEntry  EventType = "MANUAL_ENTRY"
	EventTagChange    EventType = "TAG_CHANGE"
	EventSystemChange EventType = "SYSTEM_CHANGE"
)

// TimelineEvent is an append-only audit entry attached to a contact and
// optionally a deal. Rows are never mutated or deleted.
type TimelineEvent struct {
	ID          string         `json:"id"`
	ContactID   string         `json:"contact_id"`
	DealID      *string        `json:"deal_id,omitempty"`
	EventType   EventType      `json:"event_type"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
}

package model

import (
	"strings"
	"time"
)

// CallStatus is the lifecycle state of a forwarded call.
type CallStatus string

const (
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in-progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusNoAnswer   CallStatus = "no-answer"
	CallStatusBusy       CallStatus = "busy"
	CallStatusFailed     CallStatus = "failed"
	CallStatusCanceled   CallStatus = "canceled"
)

// NormalizeCallStatus maps provider status strings onto our enum. Unknown
// values map to failed rather than passing through unvalidated.
func NormalizeCallStatus(raw string) CallStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "ringing", "initiated":
		return CallStatusRinging
	case "in-progress", "answered":
		return CallStatusInProgress
	case "completed":
		return CallStatusCompleted
	case "busy":
		return CallStatusBusy
	case "no-answer":
		return CallStatusNoAnswer
	case "canceled":
		return CallStatusCanceled
	default:
		return CallStatusFailed
	}
}

// Call is one tracked phone call, keyed by the provider-assigned call SID.
// Status, duration and recording fields are filled in by asynchronous
// callbacks after the initial insert.
type Call struct {
	ID                string     `json:"id"`
	CallSID           string     `json:"call_sid"`
	FromNumber        string     `json:"from_number"`
	ToNumber          string     `json:"to_number"`
	DestinationNumber string     `json:"destination_number"`
	Status            CallStatus `json:"status"`
	DurationSeconds   int        `json:"duration_seconds"`
	RecordingURL      *string    `json:"recording_url,omitempty"`
	RecordingSID      *string    `json:"recording_sid,omitempty"`
	Tag               *Tag       `json:"tags,omitempty"`
	Campaign          *string    `json:"campaign,omitempty"`
	TrackingSourceID  *string    `json:"tracking_source_id,omitempty"`
	OrganizationID    string     `json:"organization_id"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

package model

import "time"

// Route maps a public tracking number to a real destination number. A
// tracking number may carry any number of campaign-specific active routes
// but at most one generic (nil campaign) active route per organization.
// Routes are soft-deactivated, never deleted.
type Route struct {
	ID                string    `json:"id"`
	TrackingNumber    string    `json:"tracking_number"`
	DestinationNumber string    `json:"destination_number"`
	Campaign          *string   `json:"campaign,omitempty"`
	IsActive          bool      `json:"is_active"`
	OrganizationID    string    `json:"organization_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TrackingSource is the UTM/GCLID attribution record for a tracking
// number. Found-or-created keyed by (tracking_number, gclid), falling back
// to (tracking_number, utm_campaign).
type TrackingSource struct {
	ID             string     `json:"id"`
	TrackingNumber string     `json:"tracking_number"`
	UTMSource      *string    `json:"utm_source,omitempty"`
	UTMMedium      *string    `json:"utm_medium,omitempty"`
	UTMCampaign    *string    `json:"utm_campaign,omitempty"`
	UTMContent     *string    `json:"utm_content,omitempty"`
	UTMTerm        *string    `json:"utm_term,omitempty"`
	GCLID          *string    `json:"gclid,omitempty"`
	OrganizationID string     `json:"organization_id"`
	CreatedAt      time.Time  `json:"created_at"`
	LastCallAt     *time.Time `json:"last_call_at,omitempty"`
}

// Attribution carries the campaign parameters received on an inbound call.
type Attribution struct {
	Campaign    string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	UTMContent  string
	UTMTerm     string
	GCLID       string
}

// Empty reports whether no attribution parameter was supplied.
func (a Attribution) Empty() bool {
	return a.UTMSource == "" && a.UTMCampaign == "" && a.GCLID == "" && a.Campaign == ""
}

// EffectiveCampaign prefers the explicit campaign param over utm_campaign.
func (a Attribution) EffectiveCampaign() string {
	if a.Campaign != "" {
		return a.Campaign
	}
	return a.UTMCampaign
}

// Package crm reconciles inbound call events with the pipeline: contacts,
// deals and the append-only timeline.
package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/voicelead/calltrack/internal/model"
	"github.com/voicelead/calltrack/internal/store"
)

// ErrPhoneImmutable is returned when a phone-number edit is attempted on
// an automatically created contact. Phone is the natural key for those
// rows and must not drift.
var ErrPhoneImmutable = eris.New("crm: phone number is immutable on non-manual contacts")

// Store is the slice of the persistence layer the reconciler needs.
type Store interface {
	GetContactByPhone(ctx context.Context, phone, organizationID string) (*model.Contact, error)
	CreateContact(ctx context.Context, contact model.Contact) (*model.Contact, error)
	GetContact(ctx context.Context, id string) (*model.Contact, error)
	UpdateContact(ctx context.Context, id string, update store.ContactUpdate) (*model.Contact, error)
	DefaultStage(ctx context.Context, organizationID string) (*model.PipelineStage, error)
	OpenDealForContact(ctx context.Context, contactID, organizationID string) (*model.Deal, error)
	CreateDeal(ctx context.Context, deal model.Deal) (*model.Deal, error)
	MoveDealToStage(ctx context.Context, dealID, stageID string, at time.Time) error
	AppendEvent(ctx context.Context, event model.TimelineEvent) (*model.TimelineEvent, error)
}

// Reconciler owns the pipeline state transitions triggered by calls and
// manual CRM edits.
type Reconciler struct {
	store Store
}

// NewReconciler creates a Reconciler over the given store.
func NewReconciler(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// CallEvent is the inbound-call fact the reconciler acts on. The
// organization id comes from route resolution, never from the caller.
type CallEvent struct {
	CallSID        string
	FromNumber     string
	ToNumber       string
	OrganizationID string
}

// HandleInboundCall surfaces the caller at the top of the team's queue:
// find-or-create the contact, then either resurrect the existing open deal
// back to the inbox stage or open a new one. Freshness beats position —
// a lead that drifted down the pipeline comes back to the default stage on
// every new interaction.
func (r *Reconciler) HandleInboundCall(ctx context.Context, event CallEvent) error {
	if event.OrganizationID == "" {
		return eris.New("crm: inbound call event without organization id")
	}

	contact, created, err := r.findOrCreateContact(ctx, event.FromNumber, event.OrganizationID)
	if err != nil {
		return eris.Wrapf(err, "crm: contact for %s", event.FromNumber)
	}

	stage, err := r.store.DefaultStage(ctx, event.OrganizationID)
	if err != nil {
		return eris.Wrapf(err, "crm: default stage for org %s", event.OrganizationID)
	}

	meta := map[string]any{
		"call_sid":    event.CallSID,
		"from_number": event.FromNumber,
		"to_number":   event.ToNumber,
	}

	deal, err := r.store.OpenDealForContact(ctx, contact.ID, event.OrganizationID)
	switch {
	case err == nil:
		// Resurrection: the open deal returns to the inbox.
		now := time.Now().UTC()
		if err := r.store.MoveDealToStage(ctx, deal.ID, stage.ID, now); err != nil {
			return eris.Wrapf(err, "crm: resurrect deal %s", deal.ID)
		}
		if deal.StageID != stage.ID {
			if _, err := r.store.AppendEvent(ctx, model.TimelineEvent{
				ContactID:   contact.ID,
				DealID:      &deal.ID,
				EventType:   model.EventSystem,
				Description: "Returned to inbox (new interaction)",
			}); err != nil {
				return eris.Wrap(err, "crm: append resurrection event")
			}
		}
		if _, err := r.store.AppendEvent(ctx, model.TimelineEvent{
			ContactID:   contact.ID,
			DealID:      &deal.ID,
			EventType:   model.EventCallInbound,
			Description: "New inbound call",
			Metadata:    meta,
		}); err != nil {
			return eris.Wrap(err, "crm: append call event")
		}
		zap.L().Info("deal resurrected",
			zap.String("call_sid", event.CallSID),
			zap.String("deal_id", deal.ID),
			zap.String("organization_id", event.OrganizationID),
			zap.Bool("stage_changed", deal.StageID != stage.ID),
		)

	case eris.Is(err, store.ErrNotFound):
		newDeal, err := r.store.CreateDeal(ctx, model.Deal{
			ContactID:      contact.ID,
			StageID:        stage.ID,
			Status:         model.DealStatusOpen,
			Title:          fmt.Sprintf("Call from %s", event.FromNumber),
			Source:         model.DealSourceVoice,
			OrganizationID: event.OrganizationID,
		})
		if err != nil {
			// Lost the open-deal uniqueness race to a concurrent call:
			// the other request's deal is the live one.
			if eris.Is(err, store.ErrDuplicate) {
				zap.L().Warn("concurrent deal creation detected",
					zap.String("call_sid", event.CallSID),
					zap.String("contact_id", contact.ID),
				)
				return nil
			}
			return eris.Wrapf(err, "crm: create deal for contact %s", contact.ID)
		}
		if _, err := r.store.AppendEvent(ctx, model.TimelineEvent{
			ContactID:   contact.ID,
			DealID:      &newDeal.ID,
			EventType:   model.EventCallInbound,
			Description: "Lead created from inbound call",
			Metadata:    meta,
		}); err != nil {
			return eris.Wrap(err, "crm: append lead-created event")
		}
		zap.L().Info("lead created",
			zap.String("call_sid", event.CallSID),
			zap.String("deal_id", newDeal.ID),
			zap.String("organization_id", event.OrganizationID),
			zap.Bool("new_contact", created),
		)

	default:
		return eris.Wrapf(err, "crm: open deal lookup for contact %s", contact.ID)
	}

	return nil
}

// findOrCreateContact resolves the contact by phone within the tenant. A
// duplicate-key loss against a concurrent create re-fetches instead of
// failing.
func (r *Reconciler) findOrCreateContact(ctx context.Context, phone, organizationID string) (*model.Contact, bool, error) {
	contact, err := r.store.GetContactByPhone(ctx, phone, organizationID)
	if err == nil {
		return contact, false, nil
	}
	if !eris.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	created, err := r.store.CreateContact(ctx, model.Contact{
		PhoneNumber:    phone,
		Name:           fmt.Sprintf("Lead %s", model.LastDigits(phone, 4)),
		IsManual:       false,
		OrganizationID: organizationID,
	})
	if err == nil {
		return created, true, nil
	}
	if eris.Is(err, store.ErrDuplicate) {
		zap.L().Warn("contact create race detected, refetching",
			zap.String("phone", phone),
			zap.String("organization_id", organizationID),
		)
		existing, ferr := r.store.GetContactByPhone(ctx, phone, organizationID)
		if ferr != nil {
			return nil, false, ferr
		}
		return existing, false, nil
	}
	return nil, false, err
}

// ManualLead carries the fields for an operator-created lead.
type ManualLead struct {
	PhoneNumber    string
	Name           string
	Email          string
	OrganizationID string
	CreatedBy      string
}

// CreateManualLead creates a contact and open deal the same way an
// inbound call would, but flags the contact manual (allowing later phone
// edits) and records the entry as MANUAL_ENTRY.
func (r *Reconciler) CreateManualLead(ctx context.Context, lead ManualLead) (*model.Deal, error) {
	phone, err := model.NormalizePhone(lead.PhoneNumber)
	if err != nil {
		return nil, err
	}

	name := lead.Name
	if name == "" {
		name = fmt.Sprintf("Lead %s", model.LastDigits(phone, 4))
	}

	contact, err := r.store.CreateContact(ctx, model.Contact{
		PhoneNumber:    phone,
		Name:           name,
		IsManual:       true,
		OrganizationID: lead.OrganizationID,
	})
	if err != nil {
		if eris.Is(err, store.ErrDuplicate) {
			existing, ferr := r.store.GetContactByPhone(ctx, phone, lead.OrganizationID)
			if ferr != nil {
				return nil, ferr
			}
			contact = existing
		} else {
			return nil, eris.Wrap(err, "crm: create manual contact")
		}
	}
	if lead.Email != "" {
		if _, err := r.store.UpdateContact(ctx, contact.ID, store.ContactUpdate{Email: &lead.Email}); err != nil {
			return nil, eris.Wrap(err, "crm: set manual contact email")
		}
	}

	stage, err := r.store.DefaultStage(ctx, lead.OrganizationID)
	if err != nil {
		return nil, eris.Wrapf(err, "crm: default stage for org %s", lead.OrganizationID)
	}

	deal, err := r.store.CreateDeal(ctx, model.Deal{
		ContactID:      contact.ID,
		StageID:        stage.ID,
		Status:         model.DealStatusOpen,
		Title:          name,
		Source:         model.DealSourceManual,
		OrganizationID: lead.OrganizationID,
	})
	if err != nil {
		return nil, eris.Wrap(err, "crm: create manual deal")
	}

	if _, err := r.store.AppendEvent(ctx, model.TimelineEvent{
		ContactID:   contact.ID,
		DealID:      &deal.ID,
		EventType:   model.EventManualEntry,
		Description: "Lead created manually",
		CreatedBy:   lead.CreatedBy,
	}); err != nil {
		return nil, eris.Wrap(err, "crm: append manual entry event")
	}

	return deal, nil
}

// ContactEdit is an operator-submitted change set. Nil fields are left
// untouched.
type ContactEdit struct {
	PhoneNumber       *string
	Name              *string
	Email             *string
	ContactPreference *string
}

// UpdateContactDetails applies a contact edit. Phone numbers are only
// mutable on manual contacts; the attempt on an automatic contact is
// rejected while the remaining fields still apply. Every changed field is
// diffed against the prior row and written as a SYSTEM_CHANGE audit line
// attributed to the acting user.
func (r *Reconciler) UpdateContactDetails(ctx context.Context, contactID string, edit ContactEdit, actor string) (*model.Contact, error) {
	prior, err := r.store.GetContact(ctx, contactID)
	if err != nil {
		return nil, eris.Wrapf(err, "crm: load contact %s", contactID)
	}

	update := store.ContactUpdate{
		Name:              edit.Name,
		Email:             edit.Email,
		ContactPreference: edit.ContactPreference,
	}

	var phoneRejected bool
	if edit.PhoneNumber != nil && *edit.PhoneNumber != prior.PhoneNumber {
		if !prior.IsManual {
			phoneRejected = true
		} else {
			normalized, err := model.NormalizePhone(*edit.PhoneNumber)
			if err != nil {
				return nil, err
			}
			update.PhoneNumber = &normalized
		}
	}

	var changes []string
	diff := func(field, before, after string) {
		if before != after {
			changes = append(changes, fmt.Sprintf("%s: %q -> %q", field, before, after))
		}
	}
	if update.PhoneNumber != nil {
		diff("phone_number", prior.PhoneNumber, *update.PhoneNumber)
	}
	if update.Name != nil {
		diff("name", prior.Name, *update.Name)
	}
	if update.Email != nil {
		diff("email", deref(prior.Email), *update.Email)
	}
	if update.ContactPreference != nil {
		diff("contact_preference", deref(prior.ContactPreference), *update.ContactPreference)
	}

	if len(changes) == 0 {
		if phoneRejected {
			return nil, ErrPhoneImmutable
		}
		return prior, nil
	}

	updated, err := r.store.UpdateContact(ctx, contactID, update)
	if err != nil {
		return nil, eris.Wrapf(err, "crm: update contact %s", contactID)
	}

	description := "Contact updated: "
	for i, c := range changes {
		if i > 0 {
			description += "; "
		}
		description += c
	}
	if _, err := r.store.AppendEvent(ctx, model.TimelineEvent{
		ContactID:   contactID,
		EventType:   model.EventSystemChange,
		Description: description,
		CreatedBy:   actor,
	}); err != nil {
		return nil, eris.Wrap(err, "crm: append contact audit event")
	}

	if phoneRejected {
		zap.L().Warn("phone edit rejected on non-manual contact",
			zap.String("contact_id", contactID),
			zap.String("actor", actor),
		)
		return updated, ErrPhoneImmutable
	}
	return updated, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

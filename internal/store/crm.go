package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/voicelead/calltrack/internal/model"
)

const contactColumns = `id, phone_number, name, email, contact_preference, is_manual,
	organization_id, created_at, last_activity_at`

func scanContact(row pgx.Row) (*model.Contact, error) {
	var c model.Contact
	if err := row.Scan(&c.ID, &c.PhoneNumber, &c.Name, &c.Email, &c.ContactPreference,
		&c.IsManual, &c.OrganizationID, &c.CreatedAt, &c.LastActivityAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) GetContactByPhone(ctx context.Context, phone, organizationID string) (*model.Contact, error) {
	c, err := scanContact(s.pool.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts
		 WHERE phone_number = $1 AND organization_id = $2`,
		phone, organizationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "contact %s", phone)
		}
		return nil, eris.Wrapf(err, "postgres: contact by phone %s", phone)
	}
	return c, nil
}

// CreateContact inserts a contact. A duplicate (phone, organization)
// surfaces ErrDuplicate so the reconciler can re-fetch the row the
// concurrent request created.
func (s *PostgresStore) CreateContact(ctx context.Context, contact model.Contact) (*model.Contact, error) {
	contact.ID = uuid.New().String()
	now := time.Now().UTC()
	contact.CreatedAt = now
	contact.LastActivityAt = &now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO contacts (id, phone_number, name, email, contact_preference, is_manual,
		   organization_id, created_at, last_activity_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		contact.ID, contact.PhoneNumber, contact.Name, contact.Email, contact.ContactPreference,
		contact.IsManual, contact.OrganizationID, contact.CreatedAt, contact.LastActivityAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, eris.Wrapf(ErrDuplicate, "contact %s", contact.PhoneNumber)
		}
		return nil, eris.Wrap(err, "postgres: insert contact")
	}
	return &contact, nil
}

func (s *PostgresStore) GetContact(ctx context.Context, id string) (*model.Contact, error) {
	c, err := scanContact(s.pool.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "contact %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get contact %s", id)
	}
	return c, nil
}

func (s *PostgresStore) UpdateContact(ctx context.Context, id string, update ContactUpdate) (*model.Contact, error) {
	query := `UPDATE contacts SET last_activity_at = $1`
	args := []any{time.Now().UTC()}
	argIdx := 2

	appendField := func(col string, val any) {
		query += fmt.Sprintf(`, %s = $%d`, col, argIdx)
		args = append(args, val)
		argIdx++
	}
	if update.PhoneNumber != nil {
		appendField("phone_number", *update.PhoneNumber)
	}
	if update.Name != nil {
		appendField("name", *update.Name)
	}
	if update.Email != nil {
		appendField("email", *update.Email)
	}
	if update.ContactPreference != nil {
		appendField("contact_preference", *update.ContactPreference)
	}

	query += fmt.Sprintf(` WHERE id = $%d`, argIdx)
	args = append(args, id)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update contact %s", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "contact %s", id)
	}
	return s.GetContact(ctx, id)
}

const stageColumns = `id, name, position, color, is_default, organization_id`

func scanStage(row pgx.Row) (*model.PipelineStage, error) {
	var st model.PipelineStage
	if err := row.Scan(&st.ID, &st.Name, &st.Position, &st.Color, &st.IsDefault, &st.OrganizationID); err != nil {
		return nil, err
	}
	return &st, nil
}

// DefaultStage returns the tenant's inbox stage. Falls back to the lowest
// position when no stage is flagged default.
func (s *PostgresStore) DefaultStage(ctx context.Context, organizationID string) (*model.PipelineStage, error) {
	st, err := scanStage(s.pool.QueryRow(ctx,
		`SELECT `+stageColumns+` FROM pipeline_stages
		 WHERE organization_id = $1
		 ORDER BY is_default DESC, position ASC LIMIT 1`,
		organizationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "no stages for org %s", organizationID)
		}
		return nil, eris.Wrap(err, "postgres: default stage")
	}
	return st, nil
}

func (s *PostgresStore) ListStages(ctx context.Context, organizationID string) ([]model.PipelineStage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+stageColumns+` FROM pipeline_stages
		 WHERE organization_id = $1 ORDER BY position`,
		organizationID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stages")
	}
	defer rows.Close()

	var stages []model.PipelineStage
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan stage")
		}
		stages = append(stages, *st)
	}
	return stages, eris.Wrap(rows.Err(), "postgres: list stages iterate")
}

const dealColumns = `id, contact_id, stage_id, status, title, source, organization_id,
	last_activity_at, created_at`

func scanDeal(row pgx.Row) (*model.Deal, error) {
	var d model.Deal
	if err := row.Scan(&d.ID, &d.ContactID, &d.StageID, &d.Status, &d.Title, &d.Source,
		&d.OrganizationID, &d.LastActivityAt, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// OpenDealForContact returns the single OPEN deal for a contact within a
// tenant, or ErrNotFound.
func (s *PostgresStore) OpenDealForContact(ctx context.Context, contactID, organizationID string) (*model.Deal, error) {
	d, err := scanDeal(s.pool.QueryRow(ctx,
		`SELECT `+dealColumns+` FROM deals
		 WHERE contact_id = $1 AND organization_id = $2 AND status = 'OPEN'`,
		contactID, organizationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "open deal for contact %s", contactID)
		}
		return nil, eris.Wrapf(err, "postgres: open deal for contact %s", contactID)
	}
	return d, nil
}

func (s *PostgresStore) CreateDeal(ctx context.Context, deal model.Deal) (*model.Deal, error) {
	deal.ID = uuid.New().String()
	now := time.Now().UTC()
	deal.CreatedAt = now
	if deal.LastActivityAt.IsZero() {
		deal.LastActivityAt = now
	}
	if deal.Status == "" {
		deal.Status = model.DealStatusOpen
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO deals (id, contact_id, stage_id, status, title, source, organization_id,
		   last_activity_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		deal.ID, deal.ContactID, deal.StageID, string(deal.Status), deal.Title,
		string(deal.Source), deal.OrganizationID, deal.LastActivityAt, deal.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, eris.Wrapf(ErrDuplicate, "open deal for contact %s", deal.ContactID)
		}
		return nil, eris.Wrap(err, "postgres: insert deal")
	}
	return &deal, nil
}

// MoveDealToStage repositions a deal and refreshes its activity time.
func (s *PostgresStore) MoveDealToStage(ctx context.Context, dealID, stageID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE deals SET stage_id = $1, last_activity_at = $2 WHERE id = $3`,
		stageID, at, dealID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: move deal %s", dealID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "deal %s", dealID)
	}
	return nil
}

func (s *PostgresStore) GetDeal(ctx context.Context, id string) (*model.Deal, error) {
	d, err := scanDeal(s.pool.QueryRow(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "deal %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get deal %s", id)
	}
	return d, nil
}

// AppendEvent writes an audit entry. Timeline rows are append-only; there
// is deliberately no update or delete counterpart.
func (s *PostgresStore) AppendEvent(ctx context.Context, event model.TimelineEvent) (*model.TimelineEvent, error) {
	event.ID = uuid.New().String()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.CreatedBy == "" {
		event.CreatedBy = "system"
	}

	var metaJSON []byte
	if event.Metadata != nil {
		var err error
		metaJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal event metadata")
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO timeline_events (id, contact_id, deal_id, event_type, description, metadata, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.ContactID, event.DealID, string(event.EventType), event.Description,
		metaJSON, event.CreatedBy, event.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert timeline event")
	}
	return &event, nil
}

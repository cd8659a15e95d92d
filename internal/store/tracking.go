package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/voicelead/calltrack/internal/model"
)

const trackingColumns = `id, tracking_number, utm_source, utm_medium, utm_campaign,
	utm_content, utm_term, gclid, organization_id, created_at, last_call_at`

func scanTrackingSource(row pgx.Row) (*model.TrackingSource, error) {
	var t model.TrackingSource
	if err := row.Scan(&t.ID, &t.TrackingNumber, &t.UTMSource, &t.UTMMedium, &t.UTMCampaign,
		&t.UTMContent, &t.UTMTerm, &t.GCLID, &t.OrganizationID, &t.CreatedAt, &t.LastCallAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// FindOrCreateTrackingSource looks up the attribution record keyed by
// (tracking_number, gclid), falling back to (tracking_number,
// utm_campaign). A hit bumps last_call_at; a miss inserts. A concurrent
// insert losing the unique-index race re-fetches instead of failing.
func (s *PostgresStore) FindOrCreateTrackingSource(ctx context.Context, src model.TrackingSource) (*model.TrackingSource, error) {
	existing, err := s.lookupTrackingSource(ctx, src)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		now := time.Now().UTC()
		if _, err := s.pool.Exec(ctx,
			`UPDATE tracking_sources SET last_call_at = $1 WHERE id = $2`,
			now, existing.ID,
		); err != nil {
			return nil, eris.Wrapf(err, "postgres: touch tracking source %s", existing.ID)
		}
		existing.LastCallAt = &now
		return existing, nil
	}

	src.ID = uuid.New().String()
	now := time.Now().UTC()
	src.CreatedAt = now
	src.LastCallAt = &now

	_, err = s.pool.Exec(ctx,
		`INSERT INTO tracking_sources (id, tracking_number, utm_source, utm_medium, utm_campaign,
		   utm_content, utm_term, gclid, organization_id, created_at, last_call_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		src.ID, src.TrackingNumber, src.UTMSource, src.UTMMedium, src.UTMCampaign,
		src.UTMContent, src.UTMTerm, src.GCLID, src.OrganizationID, src.CreatedAt, src.LastCallAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			refetched, ferr := s.lookupTrackingSource(ctx, src)
			if ferr != nil {
				return nil, ferr
			}
			if refetched != nil {
				return refetched, nil
			}
		}
		return nil, eris.Wrap(err, "postgres: insert tracking source")
	}
	return &src, nil
}

func (s *PostgresStore) lookupTrackingSource(ctx context.Context, src model.TrackingSource) (*model.TrackingSource, error) {
	var row pgx.Row
	switch {
	case src.GCLID != nil && *src.GCLID != "":
		row = s.pool.QueryRow(ctx,
			`SELECT `+trackingColumns+` FROM tracking_sources
			 WHERE tracking_number = $1 AND gclid = $2 LIMIT 1`,
			src.TrackingNumber, *src.GCLID)
	case src.UTMCampaign != nil && *src.UTMCampaign != "":
		row = s.pool.QueryRow(ctx,
			`SELECT `+trackingColumns+` FROM tracking_sources
			 WHERE tracking_number = $1 AND utm_campaign = $2 AND gclid IS NULL LIMIT 1`,
			src.TrackingNumber, *src.UTMCampaign)
	default:
		return nil, nil
	}

	t, err := scanTrackingSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: lookup tracking source")
	}
	return t, nil
}

func (s *PostgresStore) ListTrackingSources(ctx context.Context, organizationID string, limit int) ([]model.TrackingSource, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+trackingColumns+` FROM tracking_sources
		 WHERE organization_id = $1
		 ORDER BY last_call_at DESC NULLS LAST LIMIT $2`,
		organizationID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tracking sources")
	}
	defer rows.Close()

	var sources []model.TrackingSource
	for rows.Next() {
		t, err := scanTrackingSource(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan tracking source")
		}
		sources = append(sources, *t)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: list tracking sources iterate")
}

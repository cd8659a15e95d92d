package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/voicelead/calltrack/internal/model"
)

const routeColumns = `id, tracking_number, destination_number, campaign, is_active, organization_id, created_at, updated_at`

func scanRoute(row pgx.Row) (*model.Route, error) {
	var r model.Route
	if err := row.Scan(&r.ID, &r.TrackingNumber, &r.DestinationNumber, &r.Campaign,
		&r.IsActive, &r.OrganizationID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// ActiveRoutes returns every active route for a tracking number,
// campaign-specific routes first. Tracking numbers are globally unique
// across tenants, so this lookup is deliberately unscoped; the matched
// route is what establishes tenant identity downstream.
func (s *PostgresStore) ActiveRoutes(ctx context.Context, trackingNumber string) ([]model.Route, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+routeColumns+` FROM phone_routes
		 WHERE tracking_number = $1 AND is_active
		 ORDER BY campaign NULLS LAST, created_at`,
		trackingNumber,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: active routes for %s", trackingNumber)
	}
	defer rows.Close()

	var routes []model.Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan route")
		}
		routes = append(routes, *r)
	}
	return routes, eris.Wrap(rows.Err(), "postgres: active routes iterate")
}

func (s *PostgresStore) CreateRoute(ctx context.Context, route model.Route) (*model.Route, error) {
	route.ID = uuid.New().String()
	now := time.Now().UTC()
	route.CreatedAt = now
	route.UpdatedAt = now
	if !route.IsActive {
		route.IsActive = true
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO phone_routes (id, tracking_number, destination_number, campaign, is_active, organization_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		route.ID, route.TrackingNumber, route.DestinationNumber, route.Campaign,
		route.IsActive, route.OrganizationID, route.CreatedAt, route.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, eris.Wrapf(ErrDuplicate, "active generic route exists for %s", route.TrackingNumber)
		}
		return nil, eris.Wrap(err, "postgres: insert route")
	}
	return &route, nil
}

func (s *PostgresStore) GetRoute(ctx context.Context, id string) (*model.Route, error) {
	r, err := scanRoute(s.pool.QueryRow(ctx,
		`SELECT `+routeColumns+` FROM phone_routes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "route %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get route %s", id)
	}
	return r, nil
}

func (s *PostgresStore) UpdateRoute(ctx context.Context, id string, destination *string, campaign *string, isActive *bool) (*model.Route, error) {
	query := `UPDATE phone_routes SET updated_at = $1`
	args := []any{time.Now().UTC()}
	argIdx := 2

	if destination != nil {
		query += fmt.Sprintf(`, destination_number = $%d`, argIdx)
		args = append(args, *destination)
		argIdx++
	}
	if campaign != nil {
		query += fmt.Sprintf(`, campaign = $%d`, argIdx)
		args = append(args, *campaign)
		argIdx++
	}
	if isActive != nil {
		query += fmt.Sprintf(`, is_active = $%d`, argIdx)
		args = append(args, *isActive)
		argIdx++
	}

	query += fmt.Sprintf(` WHERE id = $%d`, argIdx)
	args = append(args, id)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: update route %s", id)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "route %s", id)
	}
	return s.GetRoute(ctx, id)
}

// DeactivateRoute soft-deletes a route. Routes are never hard-deleted.
func (s *PostgresStore) DeactivateRoute(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE phone_routes SET is_active = FALSE, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: deactivate route %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "route %s", id)
	}
	return nil
}

func (s *PostgresStore) ListRoutes(ctx context.Context, filter RouteFilter) ([]model.Route, error) {
	query := `SELECT ` + routeColumns + ` FROM phone_routes WHERE true`
	args := []any{}
	argIdx := 1

	if filter.OrganizationID != "" {
		query += fmt.Sprintf(` AND organization_id = $%d`, argIdx)
		args = append(args, filter.OrganizationID)
		argIdx++
	}
	if filter.Campaign != "" {
		query += fmt.Sprintf(` AND campaign = $%d`, argIdx)
		args = append(args, filter.Campaign)
		argIdx++
	}
	if filter.ActiveOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list routes")
	}
	defer rows.Close()

	var routes []model.Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan route")
		}
		routes = append(routes, *r)
	}
	return routes, eris.Wrap(rows.Err(), "postgres: list routes iterate")
}

// ActiveGenericTrackingNumber returns the tenant's generic (no-campaign)
// active tracking number, used by the website snippet endpoint.
func (s *PostgresStore) ActiveGenericTrackingNumber(ctx context.Context, organizationID string) (string, error) {
	var number string
	err := s.pool.QueryRow(ctx,
		`SELECT tracking_number FROM phone_routes
		 WHERE organization_id = $1 AND is_active AND campaign IS NULL
		 LIMIT 1`,
		organizationID,
	).Scan(&number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", eris.Wrapf(ErrNotFound, "no active tracking number for org %s", organizationID)
		}
		return "", eris.Wrap(err, "postgres: generic tracking number")
	}
	return number, nil
}

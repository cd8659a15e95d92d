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

const callColumns = `id, call_sid, from_number, to_number, destination_number, status,
	duration_seconds, recording_url, recording_sid, tags, campaign, tracking_source_id,
	organization_id, created_at, updated_at`

func scanCall(row pgx.Row) (*model.Call, error) {
	var c model.Call
	var tag *string
	if err := row.Scan(&c.ID, &c.CallSID, &c.FromNumber, &c.ToNumber, &c.DestinationNumber,
		&c.Status, &c.DurationSeconds, &c.RecordingURL, &c.RecordingSID, &tag, &c.Campaign,
		&c.TrackingSourceID, &c.OrganizationID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if tag != nil {
		t := model.Tag(*tag)
		c.Tag = &t
	}
	return &c, nil
}

// InsertCall records an inbound call with insert-or-ignore semantics: a
// retried webhook delivery with the same call SID affects zero rows and
// reports inserted=false instead of erroring.
func (s *PostgresStore) InsertCall(ctx context.Context, call model.Call) (bool, error) {
	if call.ID == "" {
		call.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if call.CreatedAt.IsZero() {
		call.CreatedAt = now
	}
	call.UpdatedAt = now

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO calls (id, call_sid, from_number, to_number, destination_number, status,
		   duration_seconds, recording_url, recording_sid, tags, campaign, tracking_source_id,
		   organization_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (call_sid) DO NOTHING`,
		call.ID, call.CallSID, call.FromNumber, call.ToNumber, call.DestinationNumber,
		string(call.Status), call.DurationSeconds, call.RecordingURL, call.RecordingSID,
		tagPtr(call.Tag), call.Campaign, call.TrackingSourceID, call.OrganizationID,
		call.CreatedAt, call.UpdatedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert call %s", call.CallSID)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateCallStatus applies a lifecycle status callback. An unknown call
// SID returns ErrNotFound; callers log it instead of failing the webhook.
func (s *PostgresStore) UpdateCallStatus(ctx context.Context, callSID string, status model.CallStatus, durationSeconds int) error {
	query := `UPDATE calls SET status = $1, updated_at = $2`
	args := []any{string(status), time.Now().UTC()}
	argIdx := 3

	if durationSeconds > 0 {
		query += fmt.Sprintf(`, duration_seconds = $%d`, argIdx)
		args = append(args, durationSeconds)
		argIdx++
	}
	query += fmt.Sprintf(` WHERE call_sid = $%d`, argIdx)
	args = append(args, callSID)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update call status %s", callSID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "call %s", callSID)
	}
	return nil
}

// UpdateCallRecording attaches recording metadata to a call.
func (s *PostgresStore) UpdateCallRecording(ctx context.Context, callSID, recordingURL, recordingSID string, durationSeconds int) error {
	query := `UPDATE calls SET recording_url = $1, recording_sid = $2, updated_at = $3`
	args := []any{recordingURL, recordingSID, time.Now().UTC()}
	argIdx := 4

	if durationSeconds > 0 {
		query += fmt.Sprintf(`, duration_seconds = $%d`, argIdx)
		args = append(args, durationSeconds)
		argIdx++
	}
	query += fmt.Sprintf(` WHERE call_sid = $%d`, argIdx)
	args = append(args, callSID)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update call recording %s", callSID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "call %s", callSID)
	}
	return nil
}

// UpdateCallTag sets the call's tag unconditionally (manual edit path).
func (s *PostgresStore) UpdateCallTag(ctx context.Context, callSID string, tag model.Tag) error {
	cmdTag, err := s.pool.Exec(ctx,
		`UPDATE calls SET tags = $1, updated_at = $2 WHERE call_sid = $3`,
		string(tag), time.Now().UTC(), callSID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update call tag %s", callSID)
	}
	if cmdTag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "call %s", callSID)
	}
	return nil
}

// UpdateCallTagIfUnset sets the tag only when none exists yet. The
// analysis pipeline uses this so an AI tag never overwrites a manual one.
func (s *PostgresStore) UpdateCallTagIfUnset(ctx context.Context, callSID string, tag model.Tag) (bool, error) {
	cmdTag, err := s.pool.Exec(ctx,
		`UPDATE calls SET tags = $1, updated_at = $2 WHERE call_sid = $3 AND tags IS NULL`,
		string(tag), time.Now().UTC(), callSID,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: tag call if unset %s", callSID)
	}
	return cmdTag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetCall(ctx context.Context, callSID string) (*model.Call, error) {
	c, err := scanCall(s.pool.QueryRow(ctx,
		`SELECT `+callColumns+` FROM calls WHERE call_sid = $1`, callSID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "call %s", callSID)
		}
		return nil, eris.Wrapf(err, "postgres: get call %s", callSID)
	}
	return c, nil
}

func (s *PostgresStore) ListCalls(ctx context.Context, filter CallFilter) ([]model.Call, error) {
	if filter.OrganizationID == "" {
		return nil, eris.New("postgres: list calls requires organization id")
	}

	query := `SELECT ` + callColumns + ` FROM calls WHERE organization_id = $1`
	args := []any{filter.OrganizationID}
	argIdx := 2

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, *filter.Since)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list calls")
	}
	defer rows.Close()

	var calls []model.Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan call")
		}
		calls = append(calls, *c)
	}
	return calls, eris.Wrap(rows.Err(), "postgres: list calls iterate")
}

// Summary aggregates tenant call counts for the dashboard.
func (s *PostgresStore) Summary(ctx context.Context, organizationID string) (*AnalyticsSummary, error) {
	var sum AnalyticsSummary
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'completed'),
		        COUNT(*) FILTER (WHERE recording_url IS NOT NULL)
		 FROM calls WHERE organization_id = $1`,
		organizationID,
	).Scan(&sum.TotalCalls, &sum.CompletedCalls, &sum.RecordedCalls)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: analytics summary")
	}
	if sum.TotalCalls > 0 {
		sum.ConversionRate = float64(sum.CompletedCalls) / float64(sum.TotalCalls) * 100
	}
	return &sum, nil
}

func tagPtr(t *model.Tag) *string {
	if t == nil {
		return nil
	}
	s := string(*t)
	return &s
}

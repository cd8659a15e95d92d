package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicelead/calltrack/internal/model"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresWithPool(mock)
}

func TestInsertCall(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectExec(`INSERT INTO calls`).
		WithArgs(pgxmock.AnyArg(), "CA123", "+5511987654321", "+5511911112222", "", "ringing",
			0, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), "org-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := st.InsertCall(context.Background(), model.Call{
		CallSID:        "CA123",
		FromNumber:     "+5511987654321",
		ToNumber:       "+5511911112222",
		Status:         model.CallStatusRinging,
		OrganizationID: "org-1",
	})

	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCall_DuplicateIsIgnored(t *testing.T) {
	mock, st := newMockStore(t)

	// ON CONFLICT DO NOTHING: retried webhook affects zero rows.
	mock.ExpectExec(`INSERT INTO calls`).
		WithArgs(pgxmock.AnyArg(), "CA123", "", "", "", "",
			0, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), "org-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := st.InsertCall(context.Background(), model.Call{
		CallSID:        "CA123",
		OrganizationID: "org-1",
	})

	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCallStatus(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectExec(`UPDATE calls SET status`).
		WithArgs("completed", pgxmock.AnyArg(), 42, "CA123").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.UpdateCallStatus(context.Background(), "CA123", model.CallStatusCompleted, 42)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCallStatus_ZeroDurationNotWritten(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectExec(`UPDATE calls SET status`).
		WithArgs("ringing", pgxmock.AnyArg(), "CA123").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := st.UpdateCallStatus(context.Background(), "CA123", model.CallStatusRinging, 0)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCallStatus_UnknownCall(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectExec(`UPDATE calls SET status`).
		WithArgs("completed", pgxmock.AnyArg(), 10, "CA404").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.UpdateCallStatus(context.Background(), "CA404", model.CallStatusCompleted, 10)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestUpdateCallTagIfUnset(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectExec(`UPDATE calls SET tags = \$1, updated_at = \$2 WHERE call_sid = \$3 AND tags IS NULL`).
		WithArgs("Scheduled", pgxmock.AnyArg(), "CA123").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	applied, err := st.UpdateCallTagIfUnset(context.Background(), "CA123", model.TagScheduled)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestUpdateCallTagIfUnset_ManualTagWins(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectExec(`tags IS NULL`).
		WithArgs("Scheduled", pgxmock.AnyArg(), "CA123").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	applied, err := st.UpdateCallTagIfUnset(context.Background(), "CA123", model.TagScheduled)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestGetCall_NotFound(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM calls WHERE call_sid`).
		WithArgs("CA404").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.GetCall(context.Background(), "CA404")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestListCalls_RequiresOrganization(t *testing.T) {
	_, st := newMockStore(t)

	_, err := st.ListCalls(context.Background(), CallFilter{})
	assert.Error(t, err)
}

func TestSummary(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("org-1").
		WillReturnRows(pgxmock.NewRows([]string{"count", "completed", "recorded"}).
			AddRow(10, 4, 3))

	sum, err := st.Summary(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, 10, sum.TotalCalls)
	assert.Equal(t, 4, sum.CompletedCalls)
	assert.Equal(t, 3, sum.RecordedCalls)
	assert.InDelta(t, 40.0, sum.ConversionRate, 0.01)
}

func callRow() *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows([]string{
		"id", "call_sid", "from_number", "to_number", "destination_number", "status",
		"duration_seconds", "recording_url", "recording_sid", "tags", "campaign",
		"tracking_source_id", "organization_id", "created_at", "updated_at",
	}).AddRow(
		"id-1", "CA123", "+5511987654321", "+5511911112222", "+5511933334444", "completed",
		60, nil, nil, nil, nil, nil, "org-1", now, now,
	)
}

func TestGetCall(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM calls WHERE call_sid`).
		WithArgs("CA123").
		WillReturnRows(callRow())

	call, err := st.GetCall(context.Background(), "CA123")
	require.NoError(t, err)
	assert.Equal(t, "CA123", call.CallSID)
	assert.Equal(t, model.CallStatusCompleted, call.Status)
	assert.Nil(t, call.Tag)
}

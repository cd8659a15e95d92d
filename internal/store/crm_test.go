package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicelead/calltrack/internal/model"
)

func TestCreateContact_Duplicate(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectExec(`INSERT INTO contacts`).
		WithArgs(pgxmock.AnyArg(), "+5511987654321", "Lead 4321", pgxmock.AnyArg(),
			pgxmock.AnyArg(), false, "org-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := st.CreateContact(context.Background(), model.Contact{
		PhoneNumber:    "+5511987654321",
		Name:           "Lead 4321",
		OrganizationID: "org-1",
	})
	assert.True(t, eris.Is(err, ErrDuplicate))
}

func TestGetContactByPhone_NotFound(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM contacts`).
		WithArgs("+5511987654321", "org-1").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.GetContactByPhone(context.Background(), "+5511987654321", "org-1")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestUpdateContact_OnlySetFieldsWritten(t *testing.T) {
	mock, st := newMockStore(t)

	name := "Maria Silva"
	now := time.Now()

	mock.ExpectExec(`UPDATE contacts SET last_activity_at = \$1, name = \$2 WHERE id = \$3`).
		WithArgs(pgxmock.AnyArg(), name, "c-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`SELECT .* FROM contacts WHERE id`).
		WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "phone_number", "name", "email", "contact_preference", "is_manual",
			"organization_id", "created_at", "last_activity_at",
		}).AddRow("c-1", "+5511987654321", name, nil, nil, false, "org-1", now, &now))

	contact, err := st.UpdateContact(context.Background(), "c-1", ContactUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, contact.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDefaultStage_PrefersDefaultFlag(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectQuery(`ORDER BY is_default DESC, position ASC`).
		WithArgs("org-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "position", "color", "is_default", "organization_id",
		}).AddRow("s-1", "Inbox", 0, "#00AA00", true, "org-1"))

	stage, err := st.DefaultStage(context.Background(), "org-1")
	require.NoError(t, err)
	assert.Equal(t, "Inbox", stage.Name)
	assert.True(t, stage.IsDefault)
}

func TestDefaultStage_NoStages(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectQuery(`FROM pipeline_stages`).
		WithArgs("org-1").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.DefaultStage(context.Background(), "org-1")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestOpenDealForContact_NotFound(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectQuery(`FROM deals`).
		WithArgs("c-1", "org-1").
		WillReturnError(pgx.ErrNoRows)

	_, err := st.OpenDealForContact(context.Background(), "c-1", "org-1")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestCreateDeal_SecondOpenDealRejected(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectExec(`INSERT INTO deals`).
		WithArgs(pgxmock.AnyArg(), "c-1", "s-1", "OPEN", "Call from +5511987654321",
			"voice", "org-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := st.CreateDeal(context.Background(), model.Deal{
		ContactID:      "c-1",
		StageID:        "s-1",
		Title:          "Call from +5511987654321",
		Source:         model.DealSourceVoice,
		OrganizationID: "org-1",
	})
	assert.True(t, eris.Is(err, ErrDuplicate))
}

func TestMoveDealToStage(t *testing.T) {
	mock, st := newMockStore(t)

	at := time.Now()
	mock.ExpectExec(`UPDATE deals SET stage_id = \$1, last_activity_at = \$2 WHERE id = \$3`).
		WithArgs("s-1", at, "d-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, st.MoveDealToStage(context.Background(), "d-1", "s-1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendEvent_DefaultsCreatedBy(t *testing.T) {
	mock, st := newMockStore(t)

	mock.ExpectExec(`INSERT INTO timeline_events`).
		WithArgs(pgxmock.AnyArg(), "c-1", pgxmock.AnyArg(), "CALL_INBOUND", "New inbound call",
			pgxmock.AnyArg(), "system", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	event, err := st.AppendEvent(context.Background(), model.TimelineEvent{
		ContactID:   "c-1",
		EventType:   model.EventCallInbound,
		Description: "New inbound call",
	})
	require.NoError(t, err)
	assert.Equal(t, "system", event.CreatedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicelead/calltrack/internal/model"
	"github.com/voicelead/calltrack/internal/store"
)

type apiStore struct {
	store.Store

	tagErr     error
	taggedSID  string
	taggedWith model.Tag
	createErr  error
	created    *model.Route
}

func (f *apiStore) UpdateCallTag(_ context.Context, callSID string, tag model.Tag) error {
	if f.tagErr != nil {
		return f.tagErr
	}
	f.taggedSID = callSID
	f.taggedWith = tag
	return nil
}

func (f *apiStore) CreateRoute(_ context.Context, route model.Route) (*model.Route, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	route.ID = "r-new"
	f.created = &route
	return &route, nil
}

func tagRouter(fs *apiStore) http.Handler {
	r := chi.NewRouter()
	r.Post("/calls/{call_sid}/tag", TagCallHandler(fs))
	return r
}

func postJSON(t *testing.T, handler http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestTagCallHandler(t *testing.T) {
	fs := &apiStore{}
	rec := postJSON(t, tagRouter(fs), "/calls/CA123/tag", `{"tag":"Scheduled"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CA123", fs.taggedSID)
	assert.Equal(t, model.TagScheduled, fs.taggedWith)
}

func TestTagCallHandler_TagOutsideVocabulary(t *testing.T) {
	rec := postJSON(t, tagRouter(&apiStore{}), "/calls/CA123/tag", `{"tag":"Closed-won"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "vocabulary")
}

func TestTagCallHandler_UnknownCall(t *testing.T) {
	rec := postJSON(t, tagRouter(&apiStore{tagErr: store.ErrNotFound}),
		"/calls/CA404/tag", `{"tag":"Scheduled"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRouteHandler(t *testing.T) {
	fs := &apiStore{}
	rec := postJSON(t, CreateRouteHandler(fs), "/api/routing",
		`{"tracking_number":"+55 (11) 91111-2222","destination_number":"+5511933334444","organization_id":"org-1"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, fs.created)
	assert.Equal(t, "+5511911112222", fs.created.TrackingNumber)
	assert.True(t, fs.created.IsActive)
}

func TestCreateRouteHandler_InvalidNumber(t *testing.T) {
	rec := postJSON(t, CreateRouteHandler(&apiStore{}), "/api/routing",
		`{"tracking_number":"abc","destination_number":"+5511933334444","organization_id":"org-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRouteHandler_MissingOrganization(t *testing.T) {
	rec := postJSON(t, CreateRouteHandler(&apiStore{}), "/api/routing",
		`{"tracking_number":"+5511911112222","destination_number":"+5511933334444"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRouteHandler_SecondGenericRouteRejected(t *testing.T) {
	rec := postJSON(t, CreateRouteHandler(&apiStore{createErr: store.ErrDuplicate}), "/api/routing",
		`{"tracking_number":"+5511911112222","destination_number":"+5511933334444","organization_id":"org-1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

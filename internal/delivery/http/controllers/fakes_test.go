package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"campushub/internal/delivery/http/helpers"
	"campushub/internal/delivery/http/middleware"
	"campushub/internal/domain"

	"github.com/stretchr/testify/require"
)

// testLogger is a no-op logger for controller tests so we don't assert on log output.
var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

var (
	organizer = domain.Requester{ID: "org-1", Name: "Olivia Organizer", Role: domain.RoleUser}
	student   = domain.Requester{ID: "stu-1", Name: "Sam Student", Email: "sam@example.edu", Role: domain.RoleUser}
)

var testStart = time.Date(2026, 11, 3, 17, 0, 0, 0, time.UTC)

func sampleEvent() *domain.Event {
	capacity := 2
	return &domain.Event{
		ID:            "evt-1",
		Title:         "Career Fair",
		Location:      "Main Hall",
		StartDate:     testStart,
		EndDate:       testStart.Add(3 * time.Hour),
		Category:      domain.CategoryCareer,
		Capacity:      &capacity,
		Status:        domain.StatusUpcoming,
		OrganizerID:   organizer.ID,
		OrganizerName: organizer.Name,
		Attendees:     []*domain.Attendee{},
		Version:       1,
	}
}

// newRequest builds a request carrying the requester (when non-nil) and path values.
func newRequest(method, target string, body io.Reader, requester *domain.Requester, pathValues map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requester != nil {
		req = req.WithContext(middleware.SetRequester(req.Context(), *requester))
	}
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	return req
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

// decodeEnvelope decodes the response envelope, unmarshalling data into dest when non-nil.
func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder, dest any) *helpers.APIError {
	t.Helper()
	var raw struct {
		Data  json.RawMessage   `json:"data"`
		Error *helpers.APIError `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&raw))
	if dest != nil && raw.Error == nil {
		require.NoError(t, json.Unmarshal(raw.Data, dest))
	}
	return raw.Error
}

// fakeEventService implements domain.EventService for handler tests.
type fakeEventService struct {
	err           error
	event         *domain.Event
	views         []*domain.EventView
	total         int
	lastRequester domain.Requester
	lastEventID   string
	lastCreate    *domain.Event
	lastFilter    domain.EventFilter
	lastParams    domain.PaginationParams
	lastUpdate    domain.EventUpdate
}

func (f *fakeEventService) CreateEvent(_ context.Context, requester domain.Requester, event *domain.Event) (*domain.Event, error) {
	f.lastRequester, f.lastCreate = requester, event
	if f.err != nil {
		return nil, f.err
	}
	created := *event
	created.ID = "evt-new"
	created.Status = domain.StatusUpcoming
	created.OrganizerID = requester.ID
	created.Attendees = []*domain.Attendee{}
	return &created, nil
}

func (f *fakeEventService) GetEvent(_ context.Context, eventID string, requester domain.Requester) (*domain.EventView, error) {
	f.lastEventID, f.lastRequester = eventID, requester
	if f.err != nil {
		return nil, f.err
	}
	return domain.NewEventView(f.event, requester), nil
}

func (f *fakeEventService) ListEvents(_ context.Context, filter domain.EventFilter, params domain.PaginationParams, requester domain.Requester) ([]*domain.EventView, int, error) {
	f.lastFilter, f.lastParams, f.lastRequester = filter, params, requester
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.views, f.total, nil
}

func (f *fakeEventService) UpdateEvent(_ context.Context, eventID string, requester domain.Requester, update domain.EventUpdate) (*domain.EventView, error) {
	f.lastEventID, f.lastRequester, f.lastUpdate = eventID, requester, update
	if f.err != nil {
		return nil, f.err
	}
	return domain.NewEventView(f.event, requester), nil
}

func (f *fakeEventService) DeleteEvent(_ context.Context, eventID string, requester domain.Requester) error {
	f.lastEventID, f.lastRequester = eventID, requester
	return f.err
}

// fakeRegistrationService implements domain.RegistrationService for handler tests.
type fakeRegistrationService struct {
	err         error
	result      *domain.RegistrationResult
	view        *domain.EventView
	png         []byte
	regs        []*domain.MyRegistration
	lastEventID string
	lastUser    domain.Requester
}

func (f *fakeRegistrationService) Register(_ context.Context, eventID string, requester domain.Requester) (*domain.RegistrationResult, error) {
	f.lastEventID, f.lastUser = eventID, requester
	return f.result, f.err
}

func (f *fakeRegistrationService) Cancel(_ context.Context, eventID string, requester domain.Requester) (*domain.EventView, error) {
	f.lastEventID, f.lastUser = eventID, requester
	return f.view, f.err
}

func (f *fakeRegistrationService) DownloadCheckInImage(_ context.Context, eventID string, requester domain.Requester) ([]byte, error) {
	f.lastEventID, f.lastUser = eventID, requester
	return f.png, f.err
}

func (f *fakeRegistrationService) ListMyRegistrations(_ context.Context, requester domain.Requester) ([]*domain.MyRegistration, error) {
	f.lastUser = requester
	return f.regs, f.err
}

// fakeAttendanceService implements domain.AttendanceService for handler tests.
type fakeAttendanceService struct {
	err          error
	report       *domain.AttendanceReport
	attendee     *domain.Attendee
	bulk         *domain.BulkAttendanceResult
	lastEventID  string
	lastTarget   string
	lastAttended bool
	lastUpdates  []domain.AttendanceUpdate
	lastScan     string
	lastImage    []byte
}

func (f *fakeAttendanceService) GetAttendance(_ context.Context, eventID string, _ domain.Requester) (*domain.AttendanceReport, error) {
	f.lastEventID = eventID
	return f.report, f.err
}

func (f *fakeAttendanceService) MarkOne(_ context.Context, eventID string, _ domain.Requester, targetUserID string, attended bool) (*domain.Attendee, error) {
	f.lastEventID, f.lastTarget, f.lastAttended = eventID, targetUserID, attended
	return f.attendee, f.err
}

func (f *fakeAttendanceService) MarkBulk(_ context.Context, eventID string, _ domain.Requester, updates []domain.AttendanceUpdate) (*domain.BulkAttendanceResult, error) {
	f.lastEventID, f.lastUpdates = eventID, updates
	return f.bulk, f.err
}

func (f *fakeAttendanceService) MarkByScan(_ context.Context, eventID string, _ domain.Requester, raw string) (*domain.Attendee, error) {
	f.lastEventID, f.lastScan = eventID, raw
	return f.attendee, f.err
}

func (f *fakeAttendanceService) MarkByScanImage(_ context.Context, eventID string, _ domain.Requester, image []byte) (*domain.Attendee, error) {
	f.lastEventID, f.lastImage = eventID, image
	return f.attendee, f.err
}

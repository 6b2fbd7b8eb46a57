package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"campushub/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistrationController_Register(t *testing.T) {
	e := sampleEvent()
	attendee := domain.NewAttendee(student, "chk-1", `{"type":"event_attendance"}`, testStart.Add(-time.Hour))
	e.Attendees = append(e.Attendees, attendee)
	ok := &domain.RegistrationResult{
		Event:    domain.NewEventView(e, student),
		Attendee: attendee,
		QRCode:   "data:image/png;base64,AAAA",
	}

	tests := []struct {
		name       string
		result     *domain.RegistrationResult
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{name: "registered", result: ok, wantStatus: http.StatusCreated},
		{name: "admin rejected", svcErr: domain.ErrForbiddenRole, wantStatus: http.StatusForbidden, wantCode: "forbidden_role"},
		{name: "full", svcErr: domain.ErrCapacityExceeded, wantStatus: http.StatusConflict, wantCode: "capacity_exceeded"},
		{name: "duplicate", svcErr: domain.ErrAlreadyRegistered, wantStatus: http.StatusConflict, wantCode: "already_registered"},
		{name: "closed", svcErr: domain.ErrEventNotOpen, wantStatus: http.StatusConflict, wantCode: "event_not_open"},
		{name: "missing event", svcErr: domain.ErrEventNotFound, wantStatus: http.StatusNotFound, wantCode: "event_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeRegistrationService{result: tt.result, err: tt.svcErr}
			c := NewRegistrationController(testLogger, svc)
			rr := httptest.NewRecorder()

			c.Register(rr, newRequest(http.MethodPost, "/events/evt-1/registrations", nil, &student, map[string]string{"eventID": "evt-1"}))

			require.Equal(t, tt.wantStatus, rr.Code)
			var data struct {
				Event    map[string]any `json:"event"`
				Attendee map[string]any `json:"attendee"`
				QRCode   string         `json:"qr_code"`
			}
			apiErr := decodeEnvelope(t, rr, &data)
			if tt.wantCode != "" {
				require.NotNil(t, apiErr)
				assert.Equal(t, tt.wantCode, apiErr.Code)
				return
			}
			require.Nil(t, apiErr)
			assert.Equal(t, "data:image/png;base64,AAAA", data.QRCode)
			assert.Equal(t, true, data.Event["is_registered"])
			assert.Equal(t, float64(1), data.Event["spots_remaining"])
			assert.Equal(t, "chk-1", data.Attendee["check_in_id"])
			assert.Equal(t, false, data.Attendee["attended"])
			assert.Equal(t, student, svc.lastUser)
		})
	}
}

func TestRegistrationController_Cancel(t *testing.T) {
	svc := &fakeRegistrationService{view: domain.NewEventView(sampleEvent(), student)}
	c := NewRegistrationController(testLogger, svc)
	rr := httptest.NewRecorder()

	c.Cancel(rr, newRequest(http.MethodDelete, "/events/evt-1/registrations", nil, &student, map[string]string{"eventID": "evt-1"}))

	require.Equal(t, http.StatusOK, rr.Code)
	var view map[string]any
	require.Nil(t, decodeEnvelope(t, rr, &view))
	assert.Equal(t, false, view["is_registered"])

	svc.err = domain.ErrNotRegistered
	rr = httptest.NewRecorder()
	c.Cancel(rr, newRequest(http.MethodDelete, "/events/evt-1/registrations", nil, &student, map[string]string{"eventID": "evt-1"}))
	require.Equal(t, http.StatusNotFound, rr.Code)
	apiErr := decodeEnvelope(t, rr, nil)
	require.NotNil(t, apiErr)
	assert.Equal(t, "not_registered", apiErr.Code)
}

func TestRegistrationController_DownloadCheckIn(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake")
	svc := &fakeRegistrationService{png: png}
	c := NewRegistrationController(testLogger, svc)
	rr := httptest.NewRecorder()

	c.DownloadCheckIn(rr, newRequest(http.MethodGet, "/events/evt-1/registrations/me/qr", nil, &student, map[string]string{"eventID": "evt-1"}))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="checkin-evt-1.png"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, png, rr.Body.Bytes())

	svc.err = domain.ErrNotRegistered
	rr = httptest.NewRecorder()
	c.DownloadCheckIn(rr, newRequest(http.MethodGet, "/events/evt-1/registrations/me/qr", nil, &student, map[string]string{"eventID": "evt-1"}))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
}

func TestRegistrationController_ListMine(t *testing.T) {
	svc := &fakeRegistrationService{}
	c := NewRegistrationController(testLogger, svc)
	rr := httptest.NewRecorder()

	c.ListMine(rr, newRequest(http.MethodGet, "/me/registrations", nil, &student, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"data":[]`)

	rr = httptest.NewRecorder()
	c.ListMine(rr, newRequest(http.MethodGet, "/me/registrations", nil, nil, nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

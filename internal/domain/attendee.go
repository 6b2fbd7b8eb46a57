package domain

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"
)

// Attendance is the check-in state of an attendee: either registered (not present)
// or present since a point in time. The zero value is registered.
type Attendance struct {
	presentAt *time.Time
}

// Registered returns the not-yet-present state.
func Registered() Attendance { return Attendance{} }

// PresentAt returns the present state stamped at t.
func PresentAt(t time.Time) Attendance { return Attendance{presentAt: &t} }

// Attended reports whether the attendee is present.
func (a Attendance) Attended() bool { return a.presentAt != nil }

// AttendedAt returns when the attendee was marked present, or nil.
func (a Attendance) AttendedAt() *time.Time {
	if a.presentAt == nil {
		return nil
	}
	t := *a.presentAt
	return &t
}

// Attendee is a registration embedded in an Event.
// swagger:model Attendee
type Attendee struct {
	UserID       string
	UserName     string
	RegisteredAt time.Time
	Attendance   Attendance
	CheckInID    string
	QRPayload    string
}

// NewAttendee returns a registered attendee holding the given check-in token.
func NewAttendee(r Requester, checkInID, payload string, now time.Time) *Attendee {
	return &Attendee{
		UserID:       r.ID,
		UserName:     r.Name,
		RegisteredAt: now,
		Attendance:   Registered(),
		CheckInID:    checkInID,
		QRPayload:    payload,
	}
}

// SetAttended moves the attendee to present (stamped at now) or back to registered.
func (a *Attendee) SetAttended(attended bool, now time.Time) {
	if attended {
		a.Attendance = PresentAt(now)
		return
	}
	a.Attendance = Registered()
}

type attendeeJSON struct {
	UserID       string     `json:"user_id"`
	UserName     string     `json:"user_name"`
	RegisteredAt time.Time  `json:"registered_at"`
	Attended     bool       `json:"attended"`
	AttendedAt   *time.Time `json:"attended_at"`
	CheckInID    string     `json:"check_in_id"`
	QRPayload    string     `json:"qr_payload"`
}

// MarshalJSON flattens the attendance state into attended/attended_at.
func (a Attendee) MarshalJSON() ([]byte, error) {
	return json.Marshal(attendeeJSON{
		UserID:       a.UserID,
		UserName:     a.UserName,
		RegisteredAt: a.RegisteredAt,
		Attended:     a.Attendance.Attended(),
		AttendedAt:   a.Attendance.AttendedAt(),
		CheckInID:    a.CheckInID,
		QRPayload:    a.QRPayload,
	})
}

// UnmarshalJSON rejects attended=true without a timestamp; a timestamp on a
// non-attended record is dropped.
func (a *Attendee) UnmarshalJSON(b []byte) error {
	var raw attendeeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	att := Registered()
	if raw.Attended {
		if raw.AttendedAt == nil {
			return errors.New("attendee marked attended without attended_at")
		}
		att = PresentAt(*raw.AttendedAt)
	}
	*a = Attendee{
		UserID:       raw.UserID,
		UserName:     raw.UserName,
		RegisteredAt: raw.RegisteredAt,
		Attendance:   att,
		CheckInID:    raw.CheckInID,
		QRPayload:    raw.QRPayload,
	}
	return nil
}

// AttendanceStats summarizes attendance for an event.
// swagger:model AttendanceStats
type AttendanceStats struct {
	TotalRegistered int     `json:"total_registered"`
	TotalAttended   int     `json:"total_attended"`
	AttendanceRate  float64 `json:"attendance_rate"`
}

// ComputeStats derives attendance statistics. The rate is attended/registered
// rounded to two decimals, and 0 with no registrants.
func ComputeStats(attendees []*Attendee) AttendanceStats {
	stats := AttendanceStats{TotalRegistered: len(attendees)}
	for _, a := range attendees {
		if a.Attendance.Attended() {
			stats.TotalAttended++
		}
	}
	if stats.TotalRegistered > 0 {
		rate := float64(stats.TotalAttended) / float64(stats.TotalRegistered)
		stats.AttendanceRate = math.Round(rate*100) / 100
	}
	return stats
}

// RegistrationResult is returned after a successful registration so the client can
// show the check-in code right away.
// swagger:model RegistrationResult
type RegistrationResult struct {
	Event    *EventView `json:"event"`
	Attendee *Attendee  `json:"attendee"`
	// QRCode is a PNG data URL of the preview-size check-in image.
	QRCode string `json:"qr_code"`
}

// MyRegistration bundles an event with the requester's attendee record.
// swagger:model MyRegistration
type MyRegistration struct {
	Event    *EventView `json:"event"`
	Attendee *Attendee  `json:"attendee"`
}

// AttendanceReport is the organizer's attendance list for an event.
// swagger:model AttendanceReport
type AttendanceReport struct {
	EventID    string          `json:"event_id"`
	EventTitle string          `json:"event_title"`
	Attendees  []*Attendee     `json:"attendees"`
	Stats      AttendanceStats `json:"stats"`
}

// AttendanceUpdate is one entry of a bulk attendance request.
type AttendanceUpdate struct {
	UserID   string `json:"user_id"`
	Attended bool   `json:"attended"`
}

// BulkItemError records why one bulk entry was not applied.
// swagger:model BulkItemError
type BulkItemError struct {
	UserID  string `json:"user_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BulkAttendanceResult is the outcome of a bulk attendance update.
// swagger:model BulkAttendanceResult
type BulkAttendanceResult struct {
	Results []*Attendee     `json:"results"`
	Errors  []BulkItemError `json:"errors"`
	Stats   AttendanceStats `json:"stats"`
}

// RegistrationService defines attendee-facing registration operations.
type RegistrationService interface {
	Register(ctx context.Context, eventID string, requester Requester) (*RegistrationResult, error)
	Cancel(ctx context.Context, eventID string, requester Requester) (*EventView, error)
	DownloadCheckInImage(ctx context.Context, eventID string, requester Requester) ([]byte, error)
	ListMyRegistrations(ctx context.Context, requester Requester) ([]*MyRegistration, error)
}

// AttendanceService defines organizer-facing attendance operations.
type AttendanceService interface {
	GetAttendance(ctx context.Context, eventID string, requester Requester) (*AttendanceReport, error)
	MarkOne(ctx context.Context, eventID string, requester Requester, targetUserID string, attended bool) (*Attendee, error)
	MarkBulk(ctx context.Context, eventID string, requester Requester, updates []AttendanceUpdate) (*BulkAttendanceResult, error)
	MarkByScan(ctx context.Context, eventID string, requester Requester, rawScannedText string) (*Attendee, error)
	MarkByScanImage(ctx context.Context, eventID string, requester Requester, image []byte) (*Attendee, error)
}

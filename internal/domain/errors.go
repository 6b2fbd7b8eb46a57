package domain

import (
	"errors"
	"fmt"
)

// Error categories. Every *Error unwraps to exactly one of these so callers can
// branch on the category with errors.Is.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// Error is a named business condition with a stable code and a message that can be
// shown to the user as-is.
type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// Is reports whether target is an *Error with the same code, so errors built with a
// custom message still match their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of e carrying a different message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

// Registration errors.
var (
	ErrEventNotFound     = &Error{Kind: ErrNotFound, Code: "event_not_found", Message: "Event not found"}
	ErrForbiddenRole     = &Error{Kind: ErrForbidden, Code: "forbidden_role", Message: "Administrators cannot register for events"}
	ErrEventNotOpen      = &Error{Kind: ErrConflict, Code: "event_not_open", Message: "This event is no longer open for registration"}
	ErrAlreadyRegistered = &Error{Kind: ErrConflict, Code: "already_registered", Message: "You are already registered for this event"}
	ErrCapacityExceeded  = &Error{Kind: ErrConflict, Code: "capacity_exceeded", Message: "This event has reached its maximum capacity"}
	ErrNotRegistered     = &Error{Kind: ErrNotFound, Code: "not_registered", Message: "You are not registered for this event"}
)

// Attendance errors.
var (
	ErrUnauthorized      = &Error{Kind: ErrForbidden, Code: "unauthorized", Message: "Only the event organizer or an administrator can do this"}
	ErrAttendeeNotFound  = &Error{Kind: ErrNotFound, Code: "attendee_not_found", Message: "Attendee is not registered for this event"}
	ErrCheckInIDNotFound = &Error{Kind: ErrNotFound, Code: "check_in_id_not_found", Message: "No registration matches this QR code"}
	ErrAlreadyPresent    = &Error{Kind: ErrConflict, Code: "already_present", Message: "Attendee is already marked present"}
)

// Check-in token errors.
var (
	ErrMalformedToken   = &Error{Kind: ErrInvalidInput, Code: "malformed_token", Message: "Invalid QR code format"}
	ErrWrongTokenType   = &Error{Kind: ErrInvalidInput, Code: "wrong_token_type", Message: "This QR code is not an event check-in code"}
	ErrEventMismatch    = &Error{Kind: ErrInvalidInput, Code: "event_mismatch", Message: "This QR code belongs to a different event"}
	ErrIncompleteToken  = &Error{Kind: ErrInvalidInput, Code: "incomplete_token", Message: "This QR code is missing check-in data"}
	ErrInvalidSignature = &Error{Kind: ErrInvalidInput, Code: "invalid_signature", Message: "This QR code was not issued by this service"}
	ErrUnreadableImage  = &Error{Kind: ErrInvalidInput, Code: "unreadable_image", Message: "No QR code could be read from the image"}
	ErrCheckInTooLarge  = &Error{Kind: ErrInvalidInput, Code: "check_in_too_large", Message: "Check-in details are too long to fit in a QR code"}
)

// Event lifecycle and persistence errors.
var (
	ErrInvalidEvent            = &Error{Kind: ErrInvalidInput, Code: "invalid_event", Message: "Invalid event"}
	ErrCapacityBelowAttendees  = &Error{Kind: ErrConflict, Code: "capacity_below_attendees", Message: "Capacity cannot be lower than the current number of attendees"}
	ErrInvalidStatusTransition = &Error{Kind: ErrConflict, Code: "invalid_status_transition", Message: "Event status cannot change this way"}
	ErrVersionConflict         = &Error{Kind: ErrConflict, Code: "version_conflict", Message: "The event was modified by someone else, please retry"}
)

// AlreadyPresent returns ErrAlreadyPresent naming the attendee.
func AlreadyPresent(name string) error {
	return ErrAlreadyPresent.WithMessage("Already marked present for %s", name)
}

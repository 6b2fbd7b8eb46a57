package domain

import (
	"context"
	"time"
)

// Category classifies an event.
type Category string

const (
	CategoryAcademic Category = "academic"
	CategorySocial   Category = "social"
	CategoryCareer   Category = "career"
	CategorySports   Category = "sports"
	CategoryOther    Category = "other"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryAcademic, CategorySocial, CategoryCareer, CategorySports, CategoryOther:
		return true
	}
	return false
}

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	StatusUpcoming  EventStatus = "upcoming"
	StatusOngoing   EventStatus = "ongoing"
	StatusCompleted EventStatus = "completed"
	StatusCancelled EventStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s EventStatus) Valid() bool {
	switch s {
	case StatusUpcoming, StatusOngoing, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s.
func (s EventStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// AcceptsRegistrations reports whether registrations are allowed in s.
func (s EventStatus) AcceptsRegistrations() bool {
	return !s.IsTerminal()
}

func (s EventStatus) rank() int {
	switch s {
	case StatusUpcoming:
		return 0
	case StatusOngoing:
		return 1
	case StatusCompleted:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether s may move to next: forward along
// upcoming -> ongoing -> completed, or into cancelled from any non-terminal state.
// Staying in the same state is allowed.
func (s EventStatus) CanTransitionTo(next EventStatus) bool {
	if s == next {
		return true
	}
	if s.IsTerminal() || !next.Valid() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return next.rank() > s.rank()
}

// Event is a campus event together with its embedded attendee list.
// The attendee list is kept in registration order.
type Event struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Location      string      `json:"location"`
	StartDate     time.Time   `json:"start_date"`
	EndDate       time.Time   `json:"end_date"`
	Category      Category    `json:"category"`
	Capacity      *int        `json:"capacity"`
	Status        EventStatus `json:"status"`
	OrganizerID   string      `json:"organizer_id"`
	OrganizerName string      `json:"organizer_name"`
	Attendees     []*Attendee `json:"-"`
	Version       int         `json:"version"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// NewEvent returns an upcoming Event organized by the requester. ID is set by the repository on create.
func NewEvent(title, description, location string, start, end time.Time, category Category, capacity *int, organizer Requester, now time.Time) *Event {
	return &Event{
		Title:         title,
		Description:   description,
		Location:      location,
		StartDate:     start,
		EndDate:       end,
		Category:      category,
		Capacity:      capacity,
		Status:        StatusUpcoming,
		OrganizerID:   organizer.ID,
		OrganizerName: organizer.Name,
		Attendees:     []*Attendee{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CanManage reports whether the requester may run organizer-only operations on the event.
func (e *Event) CanManage(r Requester) bool {
	return r.IsAdmin() || r.ID == e.OrganizerID
}

// FindAttendee returns the attendee registered under userID, or nil.
func (e *Event) FindAttendee(userID string) *Attendee {
	for _, a := range e.Attendees {
		if a.UserID == userID {
			return a
		}
	}
	return nil
}

// FindAttendeeByCheckInID returns the attendee holding checkInID, or nil.
func (e *Event) FindAttendeeByCheckInID(checkInID string) *Attendee {
	for _, a := range e.Attendees {
		if a.CheckInID == checkInID {
			return a
		}
	}
	return nil
}

// RemoveAttendee drops the attendee registered under userID and reports whether one was removed.
func (e *Event) RemoveAttendee(userID string) bool {
	for i, a := range e.Attendees {
		if a.UserID == userID {
			e.Attendees = append(e.Attendees[:i], e.Attendees[i+1:]...)
			return true
		}
	}
	return false
}

// RegistrationBlocker returns the reason userID cannot register for e, or nil.
// Checks run in order: status, duplicate registration, capacity.
func (e *Event) RegistrationBlocker(userID string) error {
	switch {
	case !e.Status.AcceptsRegistrations():
		return ErrEventNotOpen
	case e.FindAttendee(userID) != nil:
		return ErrAlreadyRegistered
	case e.IsFull():
		return ErrCapacityExceeded
	}
	return nil
}

// IsFull reports whether the event has no spots left.
func (e *Event) IsFull() bool {
	return IsAtCapacity(len(e.Attendees), e.Capacity)
}

// SpotsRemaining returns the number of open spots, or nil when unlimited.
func (e *Event) SpotsRemaining() *int {
	return SpotsRemaining(len(e.Attendees), e.Capacity)
}

// Validate checks the invariants that hold for every stored event.
func (e *Event) Validate() error {
	switch {
	case e.Title == "":
		return ErrInvalidEvent.WithMessage("Title is required")
	case e.StartDate.IsZero() || e.EndDate.IsZero():
		return ErrInvalidEvent.WithMessage("Start and end dates are required")
	case !e.StartDate.Before(e.EndDate):
		return ErrInvalidEvent.WithMessage("Event start must be before its end")
	case !e.Category.Valid():
		return ErrInvalidEvent.WithMessage("Unknown category %q", e.Category)
	case e.Capacity != nil && *e.Capacity <= 0:
		return ErrInvalidEvent.WithMessage("Capacity must be a positive number")
	case !e.Status.Valid():
		return ErrInvalidEvent.WithMessage("Unknown status %q", e.Status)
	}
	return nil
}

// EventView is the event as shown to a particular requester.
// swagger:model EventView
type EventView struct {
	*Event
	AttendeeCount  int  `json:"attendee_count"`
	SpotsRemaining *int `json:"spots_remaining"`
	IsFull         bool `json:"is_full"`
	IsRegistered   bool `json:"is_registered"`
}

// NewEventView builds the requester-specific view of e.
func NewEventView(e *Event, r Requester) *EventView {
	return &EventView{
		Event:          e,
		AttendeeCount:  len(e.Attendees),
		SpotsRemaining: e.SpotsRemaining(),
		IsFull:         e.IsFull(),
		IsRegistered:   e.FindAttendee(r.ID) != nil,
	}
}

// EventFilter narrows event listings. Zero values match everything.
type EventFilter struct {
	Status      EventStatus
	Category    Category
	OrganizerID string
	Search      string
}

// EventUpdate carries a partial event update; nil fields are unchanged.
type EventUpdate struct {
	Title         *string
	Description   *string
	Location      *string
	StartDate     *time.Time
	EndDate       *time.Time
	Category      *Category
	Capacity      *int
	ClearCapacity bool
	Status        *EventStatus
}

// EventRepository stores events together with their embedded attendee lists.
type EventRepository interface {
	Create(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id string) (*Event, error)
	List(ctx context.Context, filter EventFilter, params PaginationParams) ([]*Event, int, error)
	ListByAttendee(ctx context.Context, userID string) ([]*Event, error)
	// Update saves the whole event if its stored version still equals event.Version,
	// then increments event.Version. Returns ErrVersionConflict otherwise.
	Update(ctx context.Context, event *Event) error
	Delete(ctx context.Context, id string) error
	// AddAttendee appends the attendee in one conditional write: the event must accept
	// registrations, must not be full and must not already list the user.
	AddAttendee(ctx context.Context, eventID string, attendee *Attendee, now time.Time) (*Event, error)
	// RemoveAttendee removes the user's attendee record in one write.
	RemoveAttendee(ctx context.Context, eventID, userID string, now time.Time) (*Event, error)
	// MarkStarted moves every upcoming event whose start is at or before now to ongoing.
	MarkStarted(ctx context.Context, now time.Time) (int64, error)
	// MarkCompleted moves every ongoing event whose end is at or before now to completed.
	MarkCompleted(ctx context.Context, now time.Time) (int64, error)
}

// EventService defines organizer-facing event management.
type EventService interface {
	CreateEvent(ctx context.Context, requester Requester, event *Event) (*Event, error)
	GetEvent(ctx context.Context, eventID string, requester Requester) (*EventView, error)
	ListEvents(ctx context.Context, filter EventFilter, params PaginationParams, requester Requester) ([]*EventView, int, error)
	UpdateEvent(ctx context.Context, eventID string, requester Requester, update EventUpdate) (*EventView, error)
	DeleteEvent(ctx context.Context, eventID string, requester Requester) error
}

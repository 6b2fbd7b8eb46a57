package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campushub/internal/domain"
)

// maxWriteAttempts bounds read-modify-write retries after a version conflict.
const maxWriteAttempts = 3

type eventService struct {
	eventRepo      domain.EventRepository
	contextTimeout time.Duration
	now            func() time.Time
}

// NewEventService returns the organizer-facing EventService.
func NewEventService(eventRepo domain.EventRepository, timeout time.Duration) domain.EventService {
	return &eventService{
		eventRepo:      eventRepo,
		contextTimeout: timeout,
		now:            time.Now,
	}
}

func (s *eventService) CreateEvent(ctx context.Context, requester domain.Requester, event *domain.Event) (*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	now := s.now().UTC()
	e := domain.NewEvent(strings.TrimSpace(event.Title), event.Description, event.Location,
		event.StartDate, event.EndDate, event.Category, event.Capacity, requester, now)
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := s.eventRepo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return e, nil
}

func (s *eventService) GetEvent(ctx context.Context, eventID string, requester domain.Requester) (*domain.EventView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	e, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return domain.NewEventView(e, requester), nil
}

func (s *eventService) ListEvents(ctx context.Context, filter domain.EventFilter, params domain.PaginationParams, requester domain.Requester) ([]*domain.EventView, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, domain.ErrInvalidEvent.WithMessage("Unknown status %q", filter.Status)
	}
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, 0, domain.ErrInvalidEvent.WithMessage("Unknown category %q", filter.Category)
	}
	events, total, err := s.eventRepo.List(ctx, filter, params)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	views := make([]*domain.EventView, 0, len(events))
	for _, e := range events {
		views = append(views, domain.NewEventView(e, requester))
	}
	return views, total, nil
}

func (s *eventService) UpdateEvent(ctx context.Context, eventID string, requester domain.Requester, update domain.EventUpdate) (*domain.EventView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	for attempt := 1; ; attempt++ {
		e, err := s.eventRepo.GetByID(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if !e.CanManage(requester) {
			return nil, domain.ErrUnauthorized
		}
		if err := applyUpdate(e, update); err != nil {
			return nil, err
		}
		e.UpdatedAt = s.now().UTC()
		err = s.eventRepo.Update(ctx, e)
		if errors.Is(err, domain.ErrVersionConflict) && attempt < maxWriteAttempts {
			continue
		}
		if err != nil {
			return nil, err
		}
		return domain.NewEventView(e, requester), nil
	}
}

// applyUpdate writes the non-nil fields of u onto e and re-checks the event invariants.
func applyUpdate(e *domain.Event, u domain.EventUpdate) error {
	if e.Status.IsTerminal() {
		return domain.ErrInvalidStatusTransition.WithMessage("Event is %s and can no longer be edited", e.Status)
	}
	if u.Title != nil {
		e.Title = strings.TrimSpace(*u.Title)
	}
	if u.Description != nil {
		e.Description = *u.Description
	}
	if u.Location != nil {
		e.Location = *u.Location
	}
	if u.StartDate != nil {
		e.StartDate = *u.StartDate
	}
	if u.EndDate != nil {
		e.EndDate = *u.EndDate
	}
	if u.Category != nil {
		e.Category = *u.Category
	}
	switch {
	case u.ClearCapacity:
		e.Capacity = nil
	case u.Capacity != nil:
		c := *u.Capacity
		if c > 0 && !domain.CanReduceCapacityTo(c, len(e.Attendees)) {
			return domain.ErrCapacityBelowAttendees.WithMessage(
				"Capacity cannot be lower than the current number of attendees (%d)", len(e.Attendees))
		}
		e.Capacity = &c
	}
	if u.Status != nil {
		if !e.Status.CanTransitionTo(*u.Status) {
			return domain.ErrInvalidStatusTransition.WithMessage("Event status cannot change from %s to %s", e.Status, *u.Status)
		}
		e.Status = *u.Status
	}
	return e.Validate()
}

func (s *eventService) DeleteEvent(ctx context.Context, eventID string, requester domain.Requester) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	e, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if !e.CanManage(requester) {
		return domain.ErrUnauthorized
	}
	return s.eventRepo.Delete(ctx, eventID)
}

package services

import (
	"context"
	"errors"
	"time"

	"campushub/internal/domain"
)

type attendanceService struct {
	eventRepo      domain.EventRepository
	codec          domain.CheckInCodec
	contextTimeout time.Duration
	now            func() time.Time
}

// NewAttendanceService returns the organizer-facing AttendanceService.
func NewAttendanceService(eventRepo domain.EventRepository, codec domain.CheckInCodec, timeout time.Duration) domain.AttendanceService {
	return &attendanceService{
		eventRepo:      eventRepo,
		codec:          codec,
		contextTimeout: timeout,
		now:            time.Now,
	}
}

// managedEvent loads the event and checks that the requester may manage it.
func (s *attendanceService) managedEvent(ctx context.Context, eventID string, requester domain.Requester) (*domain.Event, error) {
	e, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !e.CanManage(requester) {
		return nil, domain.ErrUnauthorized
	}
	return e, nil
}

// mutate runs apply against a fresh copy of the event and saves it, retrying on
// version conflicts. apply returning an error aborts without saving; returning
// false skips the save.
func (s *attendanceService) mutate(ctx context.Context, eventID string, requester domain.Requester, apply func(e *domain.Event, now time.Time) (bool, error)) (*domain.Event, error) {
	for attempt := 1; ; attempt++ {
		e, err := s.managedEvent(ctx, eventID, requester)
		if err != nil {
			return nil, err
		}
		now := s.now().UTC()
		changed, err := apply(e, now)
		if err != nil {
			return nil, err
		}
		if !changed {
			return e, nil
		}
		e.UpdatedAt = now
		err = s.eventRepo.Update(ctx, e)
		if errors.Is(err, domain.ErrVersionConflict) && attempt < maxWriteAttempts {
			continue
		}
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

func (s *attendanceService) GetAttendance(ctx context.Context, eventID string, requester domain.Requester) (*domain.AttendanceReport, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	e, err := s.managedEvent(ctx, eventID, requester)
	if err != nil {
		return nil, err
	}
	return &domain.AttendanceReport{
		EventID:    e.ID,
		EventTitle: e.Title,
		Attendees:  e.Attendees,
		Stats:      domain.ComputeStats(e.Attendees),
	}, nil
}

func (s *attendanceService) MarkOne(ctx context.Context, eventID string, requester domain.Requester, targetUserID string, attended bool) (*domain.Attendee, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	var marked *domain.Attendee
	_, err := s.mutate(ctx, eventID, requester, func(e *domain.Event, now time.Time) (bool, error) {
		marked = e.FindAttendee(targetUserID)
		if marked == nil {
			return false, domain.ErrAttendeeNotFound
		}
		marked.SetAttended(attended, now)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return marked, nil
}

func (s *attendanceService) MarkBulk(ctx context.Context, eventID string, requester domain.Requester, updates []domain.AttendanceUpdate) (*domain.BulkAttendanceResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	var result *domain.BulkAttendanceResult
	e, err := s.mutate(ctx, eventID, requester, func(e *domain.Event, now time.Time) (bool, error) {
		result = &domain.BulkAttendanceResult{
			Results: make([]*domain.Attendee, 0, len(updates)),
			Errors:  make([]domain.BulkItemError, 0),
		}
		for _, u := range updates {
			a := e.FindAttendee(u.UserID)
			if a == nil {
				result.Errors = append(result.Errors, domain.BulkItemError{
					UserID:  u.UserID,
					Code:    domain.ErrAttendeeNotFound.Code,
					Message: domain.ErrAttendeeNotFound.Message,
				})
				continue
			}
			a.SetAttended(u.Attended, now)
			result.Results = append(result.Results, a)
		}
		return len(result.Results) > 0, nil
	})
	if err != nil {
		return nil, err
	}
	result.Stats = domain.ComputeStats(e.Attendees)
	return result, nil
}

func (s *attendanceService) MarkByScan(ctx context.Context, eventID string, requester domain.Requester, rawScannedText string) (*domain.Attendee, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	var marked *domain.Attendee
	_, err := s.mutate(ctx, eventID, requester, func(e *domain.Event, now time.Time) (bool, error) {
		scanned, err := s.codec.Decode(rawScannedText, e.ID)
		if err != nil {
			return false, err
		}
		marked = e.FindAttendeeByCheckInID(scanned.CheckInID)
		if marked == nil || marked.UserID != scanned.UserID {
			return false, domain.ErrCheckInIDNotFound
		}
		if marked.Attendance.Attended() {
			return false, domain.AlreadyPresent(marked.UserName)
		}
		marked.SetAttended(true, now)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return marked, nil
}

func (s *attendanceService) MarkByScanImage(ctx context.Context, eventID string, requester domain.Requester, image []byte) (*domain.Attendee, error) {
	if err := s.checkManager(ctx, eventID, requester); err != nil {
		return nil, err
	}
	raw, err := s.codec.ReadImage(image)
	if err != nil {
		return nil, err
	}
	return s.MarkByScan(ctx, eventID, requester, raw)
}

// checkManager rejects callers who may not manage the event before any image decoding.
func (s *attendanceService) checkManager(ctx context.Context, eventID string, requester domain.Requester) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	_, err := s.managedEvent(ctx, eventID, requester)
	return err
}

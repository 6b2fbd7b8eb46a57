package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"campushub/internal/domain"
)

type registrationService struct {
	eventRepo      domain.EventRepository
	codec          domain.CheckInCodec
	emailService   domain.EmailService
	logger         *slog.Logger
	contextTimeout time.Duration
	now            func() time.Time
}

// NewRegistrationService returns the attendee-facing RegistrationService.
// emailService may be nil, in which case no confirmation is sent.
func NewRegistrationService(
	eventRepo domain.EventRepository,
	codec domain.CheckInCodec,
	emailService domain.EmailService,
	logger *slog.Logger,
	timeout time.Duration,
) domain.RegistrationService {
	return &registrationService{
		eventRepo:      eventRepo,
		codec:          codec,
		emailService:   emailService,
		logger:         logger,
		contextTimeout: timeout,
		now:            time.Now,
	}
}

func (s *registrationService) Register(ctx context.Context, eventID string, requester domain.Requester) (*domain.RegistrationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	e, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if requester.IsAdmin() {
		return nil, domain.ErrForbiddenRole
	}
	if err := e.RegistrationBlocker(requester.ID); err != nil {
		return nil, err
	}

	issued, err := s.codec.Issue(e.ID, requester.ID, requester.Name)
	if err != nil {
		return nil, fmt.Errorf("issue check-in token: %w", err)
	}
	now := s.now().UTC()
	attendee := domain.NewAttendee(requester, issued.CheckInID, issued.Payload, now)

	// The repository re-checks status, duplicates and capacity in the same write.
	updated, err := s.eventRepo.AddAttendee(ctx, e.ID, attendee, now)
	if err != nil {
		return nil, err
	}

	s.sendConfirmation(ctx, updated, requester, attendee)

	return &domain.RegistrationResult{
		Event:    domain.NewEventView(updated, requester),
		Attendee: attendee,
		QRCode:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(issued.Image),
	}, nil
}

// sendConfirmation emails the registrant; failures are logged and never fail the registration.
func (s *registrationService) sendConfirmation(ctx context.Context, e *domain.Event, requester domain.Requester, a *domain.Attendee) {
	if s.emailService == nil || requester.Email == "" {
		return
	}
	err := s.emailService.SendRegistrationConfirmation(ctx, &domain.RegistrationEmailData{
		Email:      requester.Email,
		Name:       requester.Name,
		EventTitle: e.Title,
		Location:   e.Location,
		StartDate:  e.StartDate,
		CheckInID:  a.CheckInID,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "registration confirmation not sent", "event_id", e.ID, "user_id", requester.ID, "err", err)
	}
}

func (s *registrationService) Cancel(ctx context.Context, eventID string, requester domain.Requester) (*domain.EventView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	updated, err := s.eventRepo.RemoveAttendee(ctx, eventID, requester.ID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	return domain.NewEventView(updated, requester), nil
}

func (s *registrationService) DownloadCheckInImage(ctx context.Context, eventID string, requester domain.Requester) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	e, err := s.eventRepo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	a := e.FindAttendee(requester.ID)
	if a == nil {
		return nil, domain.ErrNotRegistered
	}
	img, err := s.codec.RenderForDownload(a.QRPayload)
	if err != nil {
		return nil, fmt.Errorf("render check-in image: %w", err)
	}
	return img, nil
}

func (s *registrationService) ListMyRegistrations(ctx context.Context, requester domain.Requester) ([]*domain.MyRegistration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	events, err := s.eventRepo.ListByAttendee(ctx, requester.ID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	out := make([]*domain.MyRegistration, 0, len(events))
	for _, e := range events {
		a := e.FindAttendee(requester.ID)
		if a == nil {
			continue
		}
		out = append(out, &domain.MyRegistration{Event: domain.NewEventView(e, requester), Attendee: a})
	}
	return out, nil
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"campushub/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var (
	testNow   = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	testStart = testNow.Add(48 * time.Hour)
	testEnd   = testStart.Add(2 * time.Hour)
)

var (
	organizer = domain.Requester{ID: "org-1", Name: "Olga", Role: domain.RoleUser}
	admin     = domain.Requester{ID: "adm-1", Name: "Root", Role: domain.RoleAdmin}
	alice     = domain.Requester{ID: "u-a", Name: "Alice", Email: "alice@example.com", Role: domain.RoleUser}
	bob       = domain.Requester{ID: "u-b", Name: "Bob", Role: domain.RoleUser}
	carol     = domain.Requester{ID: "u-c", Name: "Carol", Role: domain.RoleUser}
)

func intPtr(n int) *int { return &n }

func fixedClock() func() time.Time { return func() time.Time { return testNow } }

func cloneEvent(e *domain.Event) *domain.Event {
	c := *e
	if e.Capacity != nil {
		capacity := *e.Capacity
		c.Capacity = &capacity
	}
	c.Attendees = make([]*domain.Attendee, 0, len(e.Attendees))
	for _, a := range e.Attendees {
		ac := *a
		c.Attendees = append(c.Attendees, &ac)
	}
	return &c
}

// fakeEventRepo is an in-memory EventRepository. It stores and returns copies so
// services only see their own writes after Update.
type fakeEventRepo struct {
	mu        sync.Mutex
	byID      map[string]*domain.Event
	nextID    int
	err       error // if set, Create, List and the sweeps return this error
	conflicts int   // number of upcoming Update calls that report a version conflict
	updates   int
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{byID: make(map[string]*domain.Event), nextID: 1}
}

// seed stores an open event organized by organizer and returns its id.
func (f *fakeEventRepo) seed(capacity *int, status domain.EventStatus, attendees ...domain.Requester) string {
	e := domain.NewEvent("Go Meetup", "Talks", "Hall B", testStart, testEnd, domain.CategoryAcademic, capacity, organizer, testNow)
	e.Status = status
	for _, r := range attendees {
		e.Attendees = append(e.Attendees, domain.NewAttendee(r, "chk-"+r.ID, "{}", testNow))
	}
	if err := f.Create(context.Background(), e); err != nil {
		panic(err)
	}
	return e.ID
}

func (f *fakeEventRepo) get(id string) *domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneEvent(f.byID[id])
}

func (f *fakeEventRepo) Create(ctx context.Context, e *domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	e.ID = fmt.Sprintf("ev-%d", f.nextID)
	e.Version = 1
	f.nextID++
	f.byID[e.ID] = cloneEvent(e)
	return nil
}

func (f *fakeEventRepo) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return cloneEvent(e), nil
}

func (f *fakeEventRepo) List(ctx context.Context, filter domain.EventFilter, params domain.PaginationParams) ([]*domain.Event, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, 0, f.err
	}
	var out []*domain.Event
	for _, e := range f.byID {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		if filter.OrganizerID != "" && e.OrganizerID != filter.OrganizerID {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(e.Title), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, cloneEvent(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if params.PageSize > 0 {
		start := min(params.Offset(), total)
		end := min(start+params.PageSize, total)
		out = out[start:end]
	}
	return out, total, nil
}

func (f *fakeEventRepo) ListByAttendee(ctx context.Context, userID string) ([]*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Event
	for _, e := range f.byID {
		if e.FindAttendee(userID) != nil {
			out = append(out, cloneEvent(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeEventRepo) Update(ctx context.Context, e *domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[e.ID]
	if !ok {
		return domain.ErrEventNotFound
	}
	if f.conflicts > 0 {
		f.conflicts--
		stored.Version++
		return domain.ErrVersionConflict
	}
	if stored.Version != e.Version {
		return domain.ErrVersionConflict
	}
	e.Version++
	f.updates++
	f.byID[e.ID] = cloneEvent(e)
	return nil
}

func (f *fakeEventRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return domain.ErrEventNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeEventRepo) AddAttendee(ctx context.Context, eventID string, a *domain.Attendee, now time.Time) (*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[eventID]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	if err := e.RegistrationBlocker(a.UserID); err != nil {
		return nil, err
	}
	ac := *a
	e.Attendees = append(e.Attendees, &ac)
	e.Version++
	e.UpdatedAt = now
	return cloneEvent(e), nil
}

func (f *fakeEventRepo) RemoveAttendee(ctx context.Context, eventID, userID string, now time.Time) (*domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.byID[eventID]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	if !e.RemoveAttendee(userID) {
		return nil, domain.ErrNotRegistered
	}
	e.Version++
	e.UpdatedAt = now
	return cloneEvent(e), nil
}

func (f *fakeEventRepo) MarkStarted(ctx context.Context, now time.Time) (int64, error) {
	return f.promote(domain.StatusUpcoming, domain.StatusOngoing, now, func(e *domain.Event) time.Time { return e.StartDate })
}

func (f *fakeEventRepo) MarkCompleted(ctx context.Context, now time.Time) (int64, error) {
	return f.promote(domain.StatusOngoing, domain.StatusCompleted, now, func(e *domain.Event) time.Time { return e.EndDate })
}

func (f *fakeEventRepo) promote(from, to domain.EventStatus, now time.Time, at func(*domain.Event) time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	var n int64
	for _, e := range f.byID {
		if e.Status == from && !at(e).After(now) {
			e.Status = to
			e.Version++
			n++
		}
	}
	return n, nil
}

// fakeCodec is a CheckInCodec with unsigned JSON payloads and text "images".
type fakeCodec struct {
	issued int
}

func (c *fakeCodec) Issue(eventID, userID, userName string) (*domain.IssuedCheckIn, error) {
	c.issued++
	tok := domain.CheckInToken{
		Type: domain.CheckInTokenType, EventID: eventID, UserID: userID, UserName: userName,
		CheckInID: fmt.Sprintf("chk-%s-%d", userID, c.issued), IssuedAt: testNow.UnixMilli(),
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return nil, err
	}
	return &domain.IssuedCheckIn{CheckInID: tok.CheckInID, Payload: string(b), Image: []byte("img:" + string(b))}, nil
}

func (c *fakeCodec) Decode(raw, expectedEventID string) (*domain.ScannedCheckIn, error) {
	var tok domain.CheckInToken
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, domain.ErrMalformedToken
	}
	switch {
	case tok.Type != domain.CheckInTokenType:
		return nil, domain.ErrWrongTokenType
	case tok.EventID != expectedEventID:
		return nil, domain.ErrEventMismatch
	case tok.UserID == "" || tok.CheckInID == "":
		return nil, domain.ErrIncompleteToken
	}
	return &domain.ScannedCheckIn{UserID: tok.UserID, CheckInID: tok.CheckInID}, nil
}

func (c *fakeCodec) RenderForDownload(payload string) ([]byte, error) {
	return []byte("print:" + payload), nil
}

func (c *fakeCodec) ReadImage(image []byte) (string, error) {
	s := string(image)
	for _, prefix := range []string{"img:", "print:"} {
		if strings.HasPrefix(s, prefix) {
			return strings.TrimPrefix(s, prefix), nil
		}
	}
	return "", domain.ErrUnreadableImage
}

type fakeEmailService struct {
	mu   sync.Mutex
	sent []*domain.RegistrationEmailData
	err  error
}

func (f *fakeEmailService) SendRegistrationConfirmation(ctx context.Context, data *domain.RegistrationEmailData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, data)
	return nil
}

type fakeLock struct {
	held bool
	err  error
	ttl  time.Duration
}

func (l *fakeLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.held {
		return false, nil
	}
	l.held = true
	l.ttl = ttl
	return true, nil
}

func (l *fakeLock) Release(ctx context.Context, key string) error {
	l.held = false
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"campushub/internal/domain"
)

const eventColumns = `id, title, description, location, start_date, end_date, category, capacity, status,
		organizer_id, organizer_name, attendees, version, created_at, updated_at`

// likeEscaper makes search text match literally inside ILIKE ... ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Postgres error code for a malformed uuid literal.
const invalidTextRepresentation = "22P02"

type eventRepository struct {
	DB     *sql.DB
	tracer trace.Tracer
}

// NewEventRepository returns an EventRepository storing each event as one row with its
// attendees embedded as a JSONB array.
func NewEventRepository(db *sql.DB) domain.EventRepository {
	return &eventRepository{
		DB:     db,
		tracer: otel.Tracer("campushub/repository/postgres"),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	e := &domain.Event{}
	var capacity sql.NullInt64
	var attendees []byte
	err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.Location, &e.StartDate, &e.EndDate, &e.Category, &capacity, &e.Status,
		&e.OrganizerID, &e.OrganizerName, &attendees, &e.Version, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		e.Capacity = &c
	}
	e.Attendees = []*domain.Attendee{}
	if len(attendees) > 0 {
		if err := json.Unmarshal(attendees, &e.Attendees); err != nil {
			return nil, fmt.Errorf("decode attendees of event %s: %w", e.ID, err)
		}
	}
	return e, nil
}

func encodeAttendees(attendees []*domain.Attendee) ([]byte, error) {
	if attendees == nil {
		attendees = []*domain.Attendee{}
	}
	b, err := json.Marshal(attendees)
	if err != nil {
		return nil, fmt.Errorf("encode attendees: %w", err)
	}
	return b, nil
}

func nullCapacity(c *int) sql.NullInt64 {
	if c == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*c), Valid: true}
}

// notFound maps missing rows and malformed ids to ErrEventNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrEventNotFound
	}
	var perr *pq.Error
	if errors.As(err, &perr) && perr.Code == invalidTextRepresentation {
		return domain.ErrEventNotFound
	}
	return err
}

func (r *eventRepository) start(ctx context.Context, op, eventID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("db.operation", op)}
	if eventID != "" {
		attrs = append(attrs, attribute.String("event.id", eventID))
	}
	return r.tracer.Start(ctx, "postgres.events."+op, trace.WithAttributes(attrs...))
}

func fail(span trace.Span, err error) error {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *eventRepository) Create(ctx context.Context, e *domain.Event) error {
	ctx, span := r.start(ctx, "create", "")
	defer span.End()

	attendees, err := encodeAttendees(e.Attendees)
	if err != nil {
		return fail(span, err)
	}
	query := `
		INSERT INTO events (title, description, location, start_date, end_date, category, capacity, status,
			organizer_id, organizer_name, attendees, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13)
		RETURNING id
	`
	err = r.DB.QueryRowContext(ctx, query,
		e.Title, e.Description, e.Location, e.StartDate, e.EndDate, e.Category, nullCapacity(e.Capacity), e.Status,
		e.OrganizerID, e.OrganizerName, attendees, e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fail(span, err)
	}
	e.Version = 1
	span.SetAttributes(attribute.String("event.id", e.ID))
	return nil
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	ctx, span := r.start(ctx, "get", id)
	defer span.End()

	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	e, err := scanEvent(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fail(span, notFound(err))
	}
	return e, nil
}

func (r *eventRepository) List(ctx context.Context, filter domain.EventFilter, params domain.PaginationParams) ([]*domain.Event, int, error) {
	ctx, span := r.start(ctx, "list", "")
	defer span.End()

	var where []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.OrganizerID != "" {
		add("organizer_id = $%d", filter.OrganizerID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		add(`title ILIKE $%d ESCAPE '\'`, "%"+likeEscaper.Replace(s)+"%")
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fail(span, fmt.Errorf("count events: %w", err))
	}

	query := `SELECT ` + eventColumns + ` FROM events` + whereSQL + ` ORDER BY start_date ASC, id ASC`
	if params.PageSize > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, params.PageSize, params.Offset())
	}
	events, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, fail(span, err)
	}
	span.SetAttributes(attribute.Int("result.count", len(events)), attribute.Int("result.total", total))
	return events, total, nil
}

func (r *eventRepository) ListByAttendee(ctx context.Context, userID string) ([]*domain.Event, error) {
	ctx, span := r.start(ctx, "list_by_attendee", "")
	defer span.End()

	query := `SELECT ` + eventColumns + ` FROM events
		WHERE attendees @> jsonb_build_array(jsonb_build_object('user_id', $1::text))
		ORDER BY start_date ASC, id ASC`
	events, err := r.query(ctx, query, userID)
	if err != nil {
		return nil, fail(span, err)
	}
	return events, nil
}

func (r *eventRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	events := make([]*domain.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *eventRepository) Update(ctx context.Context, e *domain.Event) error {
	ctx, span := r.start(ctx, "update", e.ID)
	defer span.End()
	span.SetAttributes(attribute.Int("expected.version", e.Version))

	attendees, err := encodeAttendees(e.Attendees)
	if err != nil {
		return fail(span, err)
	}
	query := `
		UPDATE events SET title = $2, description = $3, location = $4, start_date = $5, end_date = $6,
			category = $7, capacity = $8, status = $9, attendees = $10, updated_at = $11, version = version + 1
		WHERE id = $1 AND version = $12
	`
	result, err := r.DB.ExecContext(ctx, query,
		e.ID, e.Title, e.Description, e.Location, e.StartDate, e.EndDate,
		e.Category, nullCapacity(e.Capacity), e.Status, attendees, e.UpdatedAt, e.Version,
	)
	if err != nil {
		return fail(span, notFound(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fail(span, err)
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, e.ID); err != nil {
			return fail(span, err)
		}
		span.SetAttributes(attribute.Bool("conflict.detected", true))
		return domain.ErrVersionConflict
	}
	e.Version++
	return nil
}

func (r *eventRepository) Delete(ctx context.Context, id string) error {
	ctx, span := r.start(ctx, "delete", id)
	defer span.End()

	result, err := r.DB.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fail(span, notFound(err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fail(span, err)
	}
	if n == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *eventRepository) AddAttendee(ctx context.Context, eventID string, a *domain.Attendee, now time.Time) (*domain.Event, error) {
	ctx, span := r.start(ctx, "add_attendee", eventID)
	defer span.End()

	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fail(span, fmt.Errorf("encode attendee: %w", err))
	}
	query := `
		UPDATE events
		SET attendees = attendees || jsonb_build_array($2::jsonb), version = version + 1, updated_at = $3
		WHERE id = $1
			AND status IN ('upcoming', 'ongoing')
			AND (capacity IS NULL OR jsonb_array_length(attendees) < capacity)
			AND NOT attendees @> jsonb_build_array(jsonb_build_object('user_id', $4::text))
		RETURNING ` + eventColumns
	e, err := scanEvent(r.DB.QueryRowContext(ctx, query, eventID, payload, now, a.UserID))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fail(span, notFound(err))
	}

	// The guarded write matched nothing: report which guard rejected it.
	current, err := r.GetByID(ctx, eventID)
	if err != nil {
		return nil, fail(span, err)
	}
	if err := current.RegistrationBlocker(a.UserID); err != nil {
		return nil, err
	}
	return nil, domain.ErrVersionConflict
}

func (r *eventRepository) RemoveAttendee(ctx context.Context, eventID, userID string, now time.Time) (*domain.Event, error) {
	ctx, span := r.start(ctx, "remove_attendee", eventID)
	defer span.End()

	query := `
		UPDATE events
		SET attendees = COALESCE((
				SELECT jsonb_agg(elem ORDER BY ord)
				FROM jsonb_array_elements(attendees) WITH ORDINALITY AS t(elem, ord)
				WHERE elem->>'user_id' <> $2
			), '[]'::jsonb),
			version = version + 1, updated_at = $3
		WHERE id = $1 AND attendees @> jsonb_build_array(jsonb_build_object('user_id', $2::text))
		RETURNING ` + eventColumns
	e, err := scanEvent(r.DB.QueryRowContext(ctx, query, eventID, userID, now))
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fail(span, notFound(err))
	}
	if _, err := r.GetByID(ctx, eventID); err != nil {
		return nil, fail(span, err)
	}
	return nil, domain.ErrNotRegistered
}

func (r *eventRepository) MarkStarted(ctx context.Context, now time.Time) (int64, error) {
	return r.promote(ctx, "mark_started", `
		UPDATE events SET status = 'ongoing', version = version + 1, updated_at = $1
		WHERE status = 'upcoming' AND start_date <= $1
	`, now)
}

func (r *eventRepository) MarkCompleted(ctx context.Context, now time.Time) (int64, error) {
	return r.promote(ctx, "mark_completed", `
		UPDATE events SET status = 'completed', version = version + 1, updated_at = $1
		WHERE status = 'ongoing' AND end_date <= $1
	`, now)
}

func (r *eventRepository) promote(ctx context.Context, op, query string, now time.Time) (int64, error) {
	ctx, span := r.start(ctx, op, "")
	defer span.End()

	result, err := r.DB.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fail(span, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fail(span, err)
	}
	span.SetAttributes(attribute.Int64("rows.affected", n))
	return n, nil
}

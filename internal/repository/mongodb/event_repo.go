// Package mongodb stores events as documents with their attendees embedded as an array.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"campushub/internal/domain"
)

// CollectionName is the collection holding event documents.
const CollectionName = "events"

type attendeeDocument struct {
	UserID       string     `bson:"user_id"`
	UserName     string     `bson:"user_name"`
	RegisteredAt time.Time  `bson:"registered_at"`
	Attended     bool       `bson:"attended"`
	AttendedAt   *time.Time `bson:"attended_at"`
	CheckInID    string     `bson:"check_in_id"`
	QRPayload    string     `bson:"qr_payload"`
}

type eventDocument struct {
	ID            string             `bson:"_id"`
	Title         string             `bson:"title"`
	Description   string             `bson:"description"`
	Location      string             `bson:"location"`
	StartDate     time.Time          `bson:"start_date"`
	EndDate       time.Time          `bson:"end_date"`
	Category      string             `bson:"category"`
	Capacity      *int               `bson:"capacity"`
	Status        string             `bson:"status"`
	OrganizerID   string             `bson:"organizer_id"`
	OrganizerName string             `bson:"organizer_name"`
	Attendees     []attendeeDocument `bson:"attendees"`
	Version       int                `bson:"version"`
	CreatedAt     time.Time          `bson:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at"`
}

func toAttendeeDocument(a *domain.Attendee) attendeeDocument {
	return attendeeDocument{
		UserID:       a.UserID,
		UserName:     a.UserName,
		RegisteredAt: a.RegisteredAt,
		Attended:     a.Attendance.Attended(),
		AttendedAt:   a.Attendance.AttendedAt(),
		CheckInID:    a.CheckInID,
		QRPayload:    a.QRPayload,
	}
}

func toDocument(e *domain.Event) eventDocument {
	attendees := make([]attendeeDocument, 0, len(e.Attendees))
	for _, a := range e.Attendees {
		attendees = append(attendees, toAttendeeDocument(a))
	}
	return eventDocument{
		ID:            e.ID,
		Title:         e.Title,
		Description:   e.Description,
		Location:      e.Location,
		StartDate:     e.StartDate,
		EndDate:       e.EndDate,
		Category:      string(e.Category),
		Capacity:      e.Capacity,
		Status:        string(e.Status),
		OrganizerID:   e.OrganizerID,
		OrganizerName: e.OrganizerName,
		Attendees:     attendees,
		Version:       e.Version,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func (d eventDocument) toDomain() *domain.Event {
	attendees := make([]*domain.Attendee, 0, len(d.Attendees))
	for _, a := range d.Attendees {
		att := domain.Registered()
		if a.Attended && a.AttendedAt != nil {
			att = domain.PresentAt(a.AttendedAt.UTC())
		}
		attendees = append(attendees, &domain.Attendee{
			UserID:       a.UserID,
			UserName:     a.UserName,
			RegisteredAt: a.RegisteredAt.UTC(),
			Attendance:   att,
			CheckInID:    a.CheckInID,
			QRPayload:    a.QRPayload,
		})
	}
	return &domain.Event{
		ID:            d.ID,
		Title:         d.Title,
		Description:   d.Description,
		Location:      d.Location,
		StartDate:     d.StartDate.UTC(),
		EndDate:       d.EndDate.UTC(),
		Category:      domain.Category(d.Category),
		Capacity:      d.Capacity,
		Status:        domain.EventStatus(d.Status),
		OrganizerID:   d.OrganizerID,
		OrganizerName: d.OrganizerName,
		Attendees:     attendees,
		Version:       d.Version,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

type eventRepository struct {
	coll   *mongo.Collection
	tracer trace.Tracer
}

// NewEventRepository returns an EventRepository backed by the events collection of db.
func NewEventRepository(db *mongo.Database) domain.EventRepository {
	return &eventRepository{
		coll:   db.Collection(CollectionName),
		tracer: otel.Tracer("campushub/repository/mongodb"),
	}
}

// EnsureIndexes creates the indexes used by listings, the lifecycle sweep and attendee lookups.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(CollectionName).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "start_date", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "end_date", Value: 1}}},
		{Keys: bson.D{{Key: "organizer_id", Value: 1}}},
		{Keys: bson.D{{Key: "attendees.user_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create event indexes: %w", err)
	}
	return nil
}

func (r *eventRepository) start(ctx context.Context, op, eventID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("db.operation", op)}
	if eventID != "" {
		attrs = append(attrs, attribute.String("event.id", eventID))
	}
	return r.tracer.Start(ctx, "mongodb.events."+op, trace.WithAttributes(attrs...))
}

func fail(span trace.Span, err error) error {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// filterFor builds the query document matching filter.
func filterFor(filter domain.EventFilter) bson.M {
	q := bson.M{}
	if filter.Status != "" {
		q["status"] = string(filter.Status)
	}
	if filter.Category != "" {
		q["category"] = string(filter.Category)
	}
	if filter.OrganizerID != "" {
		q["organizer_id"] = filter.OrganizerID
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		q["title"] = bson.M{"$regex": regexp.QuoteMeta(s), "$options": "i"}
	}
	return q
}

// registrationGuard matches an event that accepts userID as a new attendee.
func registrationGuard(eventID, userID string) bson.M {
	return bson.M{
		"_id":               eventID,
		"status":            bson.M{"$in": bson.A{string(domain.StatusUpcoming), string(domain.StatusOngoing)}},
		"attendees.user_id": bson.M{"$ne": userID},
		"$or": bson.A{
			bson.M{"capacity": nil},
			bson.M{"$expr": bson.M{"$lt": bson.A{bson.M{"$size": "$attendees"}, "$capacity"}}},
		},
	}
}

func (r *eventRepository) Create(ctx context.Context, e *domain.Event) error {
	ctx, span := r.start(ctx, "create", "")
	defer span.End()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Version = 1
	if _, err := r.coll.InsertOne(ctx, toDocument(e)); err != nil {
		return fail(span, fmt.Errorf("insert event: %w", err))
	}
	span.SetAttributes(attribute.String("event.id", e.ID))
	return nil
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	ctx, span := r.start(ctx, "get", id)
	defer span.End()

	var doc eventDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fail(span, err)
	}
	return doc.toDomain(), nil
}

func (r *eventRepository) List(ctx context.Context, filter domain.EventFilter, params domain.PaginationParams) ([]*domain.Event, int, error) {
	ctx, span := r.start(ctx, "list", "")
	defer span.End()

	q := filterFor(filter)
	total, err := r.coll.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, fail(span, fmt.Errorf("count events: %w", err))
	}
	opts := options.Find().SetSort(bson.D{{Key: "start_date", Value: 1}, {Key: "_id", Value: 1}})
	if params.PageSize > 0 {
		opts.SetSkip(int64(params.Offset())).SetLimit(int64(params.PageSize))
	}
	events, err := r.find(ctx, q, opts)
	if err != nil {
		return nil, 0, fail(span, err)
	}
	return events, int(total), nil
}

func (r *eventRepository) ListByAttendee(ctx context.Context, userID string) ([]*domain.Event, error) {
	ctx, span := r.start(ctx, "list_by_attendee", "")
	defer span.End()

	opts := options.Find().SetSort(bson.D{{Key: "start_date", Value: 1}, {Key: "_id", Value: 1}})
	events, err := r.find(ctx, bson.M{"attendees.user_id": userID}, opts)
	if err != nil {
		return nil, fail(span, err)
	}
	return events, nil
}

func (r *eventRepository) find(ctx context.Context, q bson.M, opts *options.FindOptions) ([]*domain.Event, error) {
	cursor, err := r.coll.Find(ctx, q, opts)
	if err != nil {
		return nil, fmt.Errorf("find events: %w", err)
	}
	defer cursor.Close(ctx)

	events := make([]*domain.Event, 0)
	for cursor.Next(ctx) {
		var doc eventDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, doc.toDomain())
	}
	return events, cursor.Err()
}

func (r *eventRepository) Update(ctx context.Context, e *domain.Event) error {
	ctx, span := r.start(ctx, "update", e.ID)
	defer span.End()

	doc := toDocument(e)
	doc.Version = e.Version + 1
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": e.ID, "version": e.Version}, doc)
	if err != nil {
		return fail(span, fmt.Errorf("replace event: %w", err))
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetByID(ctx, e.ID); err != nil {
			return fail(span, err)
		}
		span.SetAttributes(attribute.Bool("conflict.detected", true))
		return domain.ErrVersionConflict
	}
	e.Version = doc.Version
	return nil
}

func (r *eventRepository) Delete(ctx context.Context, id string) error {
	ctx, span := r.start(ctx, "delete", id)
	defer span.End()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fail(span, fmt.Errorf("delete event: %w", err))
	}
	if res.DeletedCount == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *eventRepository) AddAttendee(ctx context.Context, eventID string, a *domain.Attendee, now time.Time) (*domain.Event, error) {
	ctx, span := r.start(ctx, "add_attendee", eventID)
	defer span.End()

	update := bson.M{
		"$push": bson.M{"attendees": toAttendeeDocument(a)},
		"$inc":  bson.M{"version": 1},
		"$set":  bson.M{"updated_at": now},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc eventDocument
	err := r.coll.FindOneAndUpdate(ctx, registrationGuard(eventID, a.UserID), update, opts).Decode(&doc)
	if err == nil {
		return doc.toDomain(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fail(span, fmt.Errorf("push attendee: %w", err))
	}

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

	update := bson.M{
		"$pull": bson.M{"attendees": bson.M{"user_id": userID}},
		"$inc":  bson.M{"version": 1},
		"$set":  bson.M{"updated_at": now},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc eventDocument
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": eventID, "attendees.user_id": userID}, update, opts).Decode(&doc)
	if err == nil {
		return doc.toDomain(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fail(span, fmt.Errorf("pull attendee: %w", err))
	}
	if _, err := r.GetByID(ctx, eventID); err != nil {
		return nil, fail(span, err)
	}
	return nil, domain.ErrNotRegistered
}

func (r *eventRepository) MarkStarted(ctx context.Context, now time.Time) (int64, error) {
	return r.promote(ctx, "mark_started",
		bson.M{"status": string(domain.StatusUpcoming), "start_date": bson.M{"$lte": now}},
		domain.StatusOngoing, now)
}

func (r *eventRepository) MarkCompleted(ctx context.Context, now time.Time) (int64, error) {
	return r.promote(ctx, "mark_completed",
		bson.M{"status": string(domain.StatusOngoing), "end_date": bson.M{"$lte": now}},
		domain.StatusCompleted, now)
}

func (r *eventRepository) promote(ctx context.Context, op string, q bson.M, to domain.EventStatus, now time.Time) (int64, error) {
	ctx, span := r.start(ctx, op, "")
	defer span.End()

	res, err := r.coll.UpdateMany(ctx, q, bson.M{
		"$set": bson.M{"status": string(to), "updated_at": now},
		"$inc": bson.M{"version": 1},
	})
	if err != nil {
		return 0, fail(span, fmt.Errorf("%s: %w", op, err))
	}
	span.SetAttributes(attribute.Int64("rows.affected", res.ModifiedCount))
	return res.ModifiedCount, nil
}

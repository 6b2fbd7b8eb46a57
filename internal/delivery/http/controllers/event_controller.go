package controllers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"campushub/internal/delivery/http/helpers"
	"campushub/internal/domain"
)

// CreateEventRequest is the request body for POST /events.
type CreateEventRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Category    string     `json:"category"`
	Capacity    *int       `json:"capacity"`
}

// Validate implements Validator.
func (c CreateEventRequest) Validate() []string {
	var errs []string
	if strings.TrimSpace(c.Title) == "" {
		errs = append(errs, "title is required")
	}
	if c.StartDate == nil {
		errs = append(errs, "start_date is required")
	}
	if c.EndDate == nil {
		errs = append(errs, "end_date is required")
	}
	if c.Category == "" {
		errs = append(errs, "category is required")
	}
	return errs
}

func (c CreateEventRequest) toEvent() *domain.Event {
	return &domain.Event{
		Title:       c.Title,
		Description: c.Description,
		Location:    c.Location,
		StartDate:   c.StartDate.UTC(),
		EndDate:     c.EndDate.UTC(),
		Category:    domain.Category(strings.ToLower(c.Category)),
		Capacity:    c.Capacity,
	}
}

// UpdateEventRequest is the request body for PATCH /events/{eventID}. All fields optional;
// omitted fields are unchanged. clear_capacity removes the capacity limit.
type UpdateEventRequest struct {
	Title         *string    `json:"title"`
	Description   *string    `json:"description"`
	Location      *string    `json:"location"`
	StartDate     *time.Time `json:"start_date"`
	EndDate       *time.Time `json:"end_date"`
	Category      *string    `json:"category"`
	Capacity      *int       `json:"capacity"`
	ClearCapacity bool       `json:"clear_capacity"`
	Status        *string    `json:"status"`
}

// Validate implements Validator.
func (u UpdateEventRequest) Validate() []string {
	var errs []string
	if u.Title != nil && strings.TrimSpace(*u.Title) == "" {
		errs = append(errs, "title cannot be empty")
	}
	if u.ClearCapacity && u.Capacity != nil {
		errs = append(errs, "capacity and clear_capacity are mutually exclusive")
	}
	return errs
}

func (u UpdateEventRequest) toUpdate() domain.EventUpdate {
	update := domain.EventUpdate{
		Title:         u.Title,
		Description:   u.Description,
		Location:      u.Location,
		Capacity:      u.Capacity,
		ClearCapacity: u.ClearCapacity,
	}
	if u.StartDate != nil {
		t := u.StartDate.UTC()
		update.StartDate = &t
	}
	if u.EndDate != nil {
		t := u.EndDate.UTC()
		update.EndDate = &t
	}
	if u.Category != nil {
		c := domain.Category(strings.ToLower(*u.Category))
		update.Category = &c
	}
	if u.Status != nil {
		s := domain.EventStatus(strings.ToLower(*u.Status))
		update.Status = &s
	}
	return update
}

// ListEventsResponse is the data payload of GET /events.
type ListEventsResponse struct {
	Items      []*domain.EventView    `json:"items"`
	Pagination helpers.PaginationMeta `json:"pagination"`
}

// EventSuccessResponse is the success envelope for single-event responses.
type EventSuccessResponse struct {
	Data  *domain.EventView `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// ListEventsSuccessResponse is the success envelope for GET /events.
type ListEventsSuccessResponse struct {
	Data  ListEventsResponse `json:"data"`
	Error *helpers.APIError  `json:"error"`
}

type EventController struct {
	Logger  *slog.Logger
	Service domain.EventService
}

func NewEventController(logger *slog.Logger, svc domain.EventService) *EventController {
	return &EventController{
		Logger:  logger,
		Service: svc,
	}
}

// CreateEvent godoc
// @Summary Create an event
// @Description The authenticated user becomes the organizer. New events start as upcoming.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param event body CreateEventRequest true "Event data"
// @Success 201 {object} controllers.EventSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request or invalid_event"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events [post]
func (c *EventController) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	requester, ok := requesterOrAbort(w, r)
	if !ok {
		return
	}
	event, err := c.Service.CreateEvent(r.Context(), requester, req.toEvent())
	if err != nil {
		writeFailure(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, domain.NewEventView(event, requester))
}

// ListEvents godoc
// @Summary List events
// @Description Paginated listing ordered by start date. Filters are optional.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param status query string false "upcoming, ongoing, completed or cancelled"
// @Param category query string false "academic, social, career, sports or other"
// @Param organizer query string false "Organizer user ID"
// @Param q query string false "Case-insensitive title search"
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} controllers.ListEventsSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: invalid_event"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events [get]
func (c *EventController) ListEvents(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterOrAbort(w, r)
	if !ok {
		return
	}
	params := helpers.ParsePagination(r)
	views, total, err := c.Service.ListEvents(r.Context(), helpers.ParseEventFilter(r), params, requester)
	if err != nil {
		writeFailure(c.Logger, w, r, err)
		return
	}
	if views == nil {
		views = []*domain.EventView{}
	}
	meta := helpers.NewPaginationMeta(params.Page, params.PageSize, total)
	helpers.WriteJSONSuccess(w, http.StatusOK, ListEventsResponse{Items: views, Pagination: meta})
}

// GetEvent godoc
// @Summary Get an event
// @Description Includes attendee count, remaining spots and whether the caller is registered.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.EventSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found"
// @Router /events/{eventID} [get]
func (c *EventController) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathParamOrAbort(w, r, "eventID")
	if !ok {
		return
	}
	requester, ok := requesterOrAbort(w, r)
	if !ok {
		return
	}
	view, err := c.Service.GetEvent(r.Context(), eventID, requester)
	if err != nil {
		writeFailure(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, view)
}

// UpdateEvent godoc
// @Summary Update an event
// @Description Organizer or admin only. Completed and cancelled events cannot be edited.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param event body UpdateEventRequest true "Fields to change"
// @Success 200 {object} controllers.EventSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request or invalid_event"
// @Failure 403 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: capacity_below_attendees, invalid_status_transition or version_conflict"
// @Router /events/{eventID} [patch]
func (c *EventController) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathParamOrAbort(w, r, "eventID")
	if !ok {
		return
	}
	var req UpdateEventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	requester, ok := requesterOrAbort(w, r)
	if !ok {
		return
	}
	view, err := c.Service.UpdateEvent(r.Context(), eventID, requester, req.toUpdate())
	if err != nil {
		writeFailure(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, view)
}

// DeleteEvent godoc
// @Summary Delete an event
// @Description Organizer or admin only.
// @Tags events
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 204
// @Failure 403 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found"
// @Router /events/{eventID} [delete]
func (c *EventController) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathParamOrAbort(w, r, "eventID")
	if !ok {
		return
	}
	requester, ok := requesterOrAbort(w, r)
	if !ok {
		return
	}
	if err := c.Service.DeleteEvent(r.Context(), eventID, requester); err != nil {
		writeFailure(c.Logger, w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

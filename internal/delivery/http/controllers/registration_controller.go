package controllers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"campushub/internal/delivery/http/helpers"
	"campushub/internal/domain"
)

// RegistrationSuccessResponse is the success envelope for POST /events/{eventID}/registrations.
type RegistrationSuccessResponse struct {
	Data  *domain.RegistrationResult `json:"data"`
	Error *helpers.APIError          `json:"error"`
}

// MyRegistrationsSuccessResponse is the success envelope for GET /me/registrations.
type MyRegistrationsSuccessResponse struct {
	Data  []*domain.MyRegistration `json:"data"`
	Error *helpers.APIError        `json:"error"`
}

type RegistrationController struct {
	Logger  *slog.Logger
	Service domain.RegistrationService
}

func NewRegistrationController(logger *slog.Logger, svc domain.RegistrationService) *RegistrationController {
	return &RegistrationController{
		Logger:  logger,
		Service: svc,
	}
}

// Register godoc
// @Summary Register for an event
// @Description Registers the caller and returns their check-in QR code as a PNG data URL.
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 201 {object} controllers.RegistrationSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden_role"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: event_not_open, already_registered or capacity_exceeded"
// @Router /events/{eventID}/registrations [post]
func (c *RegistrationController) Register(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathParamOrAbort(w, r, "eventID")
	if !ok {
		return
	}
	requester, ok := requesterOrAbort(w, r)
	if !ok {
		return
	}
	result, err := c.Service.Register(r.Context(), eventID, requester)
	if err != nil {
		writeFailure(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, result)
}

// Cancel godoc
// @Summary Cancel a registration
// @Description Removes the caller from the attendee list. There is no waitlist.
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.EventSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found or not_registered"
// @Router /events/{eventID}/registrations [delete]
func (c *RegistrationController) Cancel(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathParamOrAbort(w, r, "eventID")
	if !ok {
		return
	}
	requester, ok := requesterOrAbort(w, r)
	if !ok {
		return
	}
	view, err := c.Service.Cancel(r.Context(), eventID, requester)
	if err != nil {
		writeFailure(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, view)
}

// DownloadCheckIn godoc
// @Summary Download my check-in QR code
// @Description Returns a high-resolution PNG of the caller's check-in code as an attachment.
// @Tags registrations
// @Produce png
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {file} binary
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found or not_registered"
// @Router /events/{eventID}/registrations/me/qr [get]
func (c *RegistrationController) DownloadCheckIn(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathParamOrAbort(w, r, "eventID")
	if !ok {
		return
	}
	requester, ok := requesterOrAbort(w, r)
	if !ok {
		return
	}
	png, err := c.Service.DownloadCheckInImage(r.Context(), eventID, requester)
	if err != nil {
		writeFailure(c.Logger, w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "checkin-"+eventID+".png"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// ListMine godoc
// @Summary List my registrations
// @Description Every event the caller is registered for, with their attendee record.
// @Tags registrations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} controllers.MyRegistrationsSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /me/registrations [get]
func (c *RegistrationController) ListMine(w http.ResponseWriter, r *http.Request) {
	requester, ok := requesterOrAbort(w, r)
	if !ok {
		return
	}
	regs, err := c.Service.ListMyRegistrations(r.Context(), requester)
	if err != nil {
		writeFailure(c.Logger, w, r, err)
		return
	}
	if regs == nil {
		regs = []*domain.MyRegistration{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, regs)
}

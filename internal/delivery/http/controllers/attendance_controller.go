package controllers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"campushub/internal/delivery/http/helpers"
	"campushub/internal/domain"
)

// maxScanImageBytes caps uploaded QR images.
const maxScanImageBytes = 10 << 20

// scanImageField is the multipart form field carrying the QR image.
const scanImageField = "image"

// MarkAttendanceRequest is the request body for PATCH /events/{eventID}/attendance/{userID}.
type MarkAttendanceRequest struct {
	Attended *bool `json:"attended"`
}

// Validate implements Validator.
func (m MarkAttendanceRequest) Validate() []string {
	if m.Attended == nil {
		return []string{"attended is required"}
	}
	return nil
}

// BulkAttendanceRequest is the request body for POST /events/{eventID}/attendance/bulk.
type BulkAttendanceRequest struct {
	Updates []domain.AttendanceUpdate `json:"updates"`
}

// Validate implements Validator.
func (b BulkAttendanceRequest) Validate() []string {
	if len(b.Updates) == 0 {
		return []string{"updates must contain at least one entry"}
	}
	var errs []string
	for i, u := range b.Updates {
		if strings.TrimSpace(u.UserID) == "" {
			errs = append(errs, fmt.Sprintf("updates[%d].user_id is required", i))
		}
	}
	return errs
}

// ScanRequest is the request body for POST /events/{eventID}/attendance/scan.
type ScanRequest struct {
	QRData string `json:"qr_data"`
}

// Validate implements Validator.
func (s ScanRequest) Validate() []string {
	if strings.TrimSpace(s.QRData) == "" {
		return []string{"qr_data is required"}
	}
	return nil
}

// AttendanceReportSuccessResponse is the success envelope for GET /events/{eventID}/attendance.
type AttendanceReportSuccessResponse struct {
	Data  *domain.AttendanceReport `json:"data"`
	Error *helpers.APIError        `json:"error"`
}

// AttendeeSuccessResponse is the success envelope for single-attendee responses.
type AttendeeSuccessResponse struct {
	Data  *domain.Attendee  `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// BulkAttendanceSuccessResponse is the success envelope for POST /events/{eventID}/attendance/bulk.
type BulkAttendanceSuccessResponse struct {
	Data  *domain.BulkAttendanceResult `json:"data"`
	Error *helpers.APIError            `json:"error"`
}

type AttendanceController struct {
	Logger  *slog.Logger
	Service domain.AttendanceService
}

func NewAttendanceController(logger *slog.Logger, svc domain.AttendanceService) *AttendanceController {
	return &AttendanceController{
		Logger:  logger,
		Service: svc,
	}
}

// GetAttendance godoc
// @Summary Attendance list
// @Description Organizer or admin only. Attendees in registration order with aggregate stats.
// @Tags attendance
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Success 200 {object} controllers.AttendanceReportSuccessResponse
// @Failure 403 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found"
// @Router /events/{eventID}/attendance [get]
func (c *AttendanceController) GetAttendance(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathParamOrAbort(w, r, "eventID")
	if !ok {
		return
	}
	requester, ok := requesterOrAbort(w, r)
	if !ok {
		return
	}
	report, err := c.Service.GetAttendance(r.Context(), eventID, requester)
	if err != nil {
		writeFailure(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, report)
}

// MarkOne godoc
// @Summary Mark one attendee
// @Description Organizer or admin only. Marking present again refreshes the timestamp.
// @Tags attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param userID path string true "Attendee user ID"
// @Param body body MarkAttendanceRequest true "Attendance flag"
// @Success 200 {object} controllers.AttendeeSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 403 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found or attendee_not_found"
// @Router /events/{eventID}/attendance/{userID} [patch]
func (c *AttendanceController) MarkOne(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathParamOrAbort(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := pathParamOrAbort(w, r, "userID")
	if !ok {
		return
	}
	var req MarkAttendanceRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	requester, ok := requesterOrAbort(w, r)
	if !ok {
		return
	}
	attendee, err := c.Service.MarkOne(r.Context(), eventID, requester, userID, *req.Attended)
	if err != nil {
		writeFailure(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, attendee)
}

// MarkBulk godoc
// @Summary Mark attendance in bulk
// @Description Organizer or admin only. Unknown attendees are reported in errors without failing the batch.
// @Tags attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param body body BulkAttendanceRequest true "Updates"
// @Success 200 {object} controllers.BulkAttendanceSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 403 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found"
// @Router /events/{eventID}/attendance/bulk [post]
func (c *AttendanceController) MarkBulk(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathParamOrAbort(w, r, "eventID")
	if !ok {
		return
	}
	var req BulkAttendanceRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	requester, ok := requesterOrAbort(w, r)
	if !ok {
		return
	}
	result, err := c.Service.MarkBulk(r.Context(), eventID, requester, req.Updates)
	if err != nil {
		writeFailure(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, result)
}

// Scan godoc
// @Summary Check in by scanned QR text
// @Description Organizer or admin only. Validates the scanned token and marks the attendee present.
// @Tags attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param body body ScanRequest true "Raw scanned text"
// @Success 200 {object} controllers.AttendeeSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: malformed_token, wrong_token_type, event_mismatch, incomplete_token or invalid_signature"
// @Failure 403 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found or check_in_id_not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: already_present"
// @Failure 429 {object} helpers.APIResponse "error.code: too_many_requests"
// @Router /events/{eventID}/attendance/scan [post]
func (c *AttendanceController) Scan(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathParamOrAbort(w, r, "eventID")
	if !ok {
		return
	}
	var req ScanRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	requester, ok := requesterOrAbort(w, r)
	if !ok {
		return
	}
	attendee, err := c.Service.MarkByScan(r.Context(), eventID, requester, req.QRData)
	if err != nil {
		writeFailure(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, attendee)
}

// ScanImage godoc
// @Summary Check in by uploaded QR image
// @Description Organizer or admin only. Accepts a multipart "image" field or a raw image/png or image/jpeg body.
// @Tags attendance
// @Accept multipart/form-data
// @Accept png
// @Accept jpeg
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID"
// @Param image formData file false "QR code image"
// @Success 200 {object} controllers.AttendeeSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request, unreadable_image or a token error"
// @Failure 403 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found or check_in_id_not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: already_present"
// @Failure 429 {object} helpers.APIResponse "error.code: too_many_requests"
// @Router /events/{eventID}/attendance/scan-image [post]
func (c *AttendanceController) ScanImage(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathParamOrAbort(w, r, "eventID")
	if !ok {
		return
	}
	requester, ok := requesterOrAbort(w, r)
	if !ok {
		return
	}
	image, err := readScanImage(w, r)
	if err != nil {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, err.Error())
		return
	}
	attendee, err := c.Service.MarkByScanImage(r.Context(), eventID, requester, image)
	if err != nil {
		writeFailure(c.Logger, w, r, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, attendee)
}

func readScanImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxScanImageBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		file, _, err := r.FormFile(scanImageField)
		if err != nil {
			return nil, errors.New("multipart field \"image\" is required")
		}
		defer file.Close()
		return readNonEmpty(file)
	case "image/png", "image/jpeg", "application/octet-stream":
		return readNonEmpty(r.Body)
	default:
		return nil, errors.New("expected multipart/form-data or an image/png or image/jpeg body")
	}
}

func readNonEmpty(src io.Reader) ([]byte, error) {
	b, err := io.ReadAll(src)
	if err != nil {
		return nil, errors.New("image could not be read or exceeds 10MB")
	}
	if len(b) == 0 {
		return nil, errors.New("image is empty")
	}
	return b, nil
}

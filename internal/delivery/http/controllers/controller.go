package controllers

import (
	"log/slog"
	"net/http"

	"campushub/internal/delivery/http/helpers"
	"campushub/internal/delivery/http/middleware"
	"campushub/internal/domain"
)

// requesterOrAbort returns the authenticated requester, writing 401 when the route was
// mounted without RequireAuth.
func requesterOrAbort(w http.ResponseWriter, r *http.Request) (domain.Requester, bool) {
	requester, ok := middleware.RequesterFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
	}
	return requester, ok
}

// pathParamOrAbort returns the named path value, writing 400 when it is empty.
func pathParamOrAbort(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.PathValue(name)
	if v == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing "+name)
		return "", false
	}
	return v, true
}

// writeFailure renders a service error and logs it when it was unexpected.
func writeFailure(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	if helpers.WriteServiceError(w, err) {
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
	}
}

package http

import (
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "campushub/docs"
	"campushub/internal/delivery/http/controllers"
	"campushub/internal/delivery/http/middleware"
	"campushub/internal/domain"
)

// RouterDeps is everything NewRouter wires together.
type RouterDeps struct {
	Logger             *slog.Logger
	Verifier           domain.TokenVerifier
	ScanLimiter        *middleware.RateLimiter
	CORSAllowedOrigins []string
	Events             *controllers.EventController
	Registrations      *controllers.RegistrationController
	Attendance         *controllers.AttendanceController
}

// NewRouter initializes the HTTP router with all application routes and the shared
// middleware chain. Request IDs are assigned first so access logs can carry them.
func NewRouter(d RouterDeps) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.RequireAuth(d.Verifier, d.Logger)
	scan := func(next http.HandlerFunc) http.HandlerFunc { return auth(d.ScanLimiter.Wrap(next)) }

	mux.HandleFunc("GET /health", controllers.Health)

	// Events
	mux.HandleFunc("GET /events", auth(d.Events.ListEvents))
	mux.HandleFunc("POST /events", auth(d.Events.CreateEvent))
	mux.HandleFunc("GET /events/{eventID}", auth(d.Events.GetEvent))
	mux.HandleFunc("PATCH /events/{eventID}", auth(d.Events.UpdateEvent))
	mux.HandleFunc("DELETE /events/{eventID}", auth(d.Events.DeleteEvent))

	// Registrations
	mux.HandleFunc("POST /events/{eventID}/registrations", auth(d.Registrations.Register))
	mux.HandleFunc("DELETE /events/{eventID}/registrations", auth(d.Registrations.Cancel))
	mux.HandleFunc("GET /events/{eventID}/registrations/me/qr", auth(d.Registrations.DownloadCheckIn))
	mux.HandleFunc("GET /me/registrations", auth(d.Registrations.ListMine))

	// Attendance
	mux.HandleFunc("GET /events/{eventID}/attendance", auth(d.Attendance.GetAttendance))
	mux.HandleFunc("PATCH /events/{eventID}/attendance/{userID}", auth(d.Attendance.MarkOne))
	mux.HandleFunc("POST /events/{eventID}/attendance/bulk", auth(d.Attendance.MarkBulk))
	mux.HandleFunc("POST /events/{eventID}/attendance/scan", scan(d.Attendance.Scan))
	mux.HandleFunc("POST /events/{eventID}/attendance/scan-image", scan(d.Attendance.ScanImage))

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	var handler http.Handler = mux
	handler = middleware.CORS(d.CORSAllowedOrigins, handler)
	handler = chimw.Recoverer(handler)
	handler = middleware.LoggingMiddleware(d.Logger, handler)
	handler = chimw.RealIP(handler)
	handler = chimw.RequestID(handler)
	return handler
}

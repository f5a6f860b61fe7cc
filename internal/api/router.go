package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/employee"
	"github.com/hackgods/clinic-scheduling/internal/patient"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Employees    *employee.Service
	Patients     *patient.Service
	Tokens       *auth.Issuer

	Postgres Pinger
	Redis    Pinger

	Env            string
	Version        string
	Location       *time.Location
	Logger         zerolog.Logger
	LoginRateRPS   float64
	LoginRateBurst int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(LocationMiddleware(cfg.Location))

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	secureCookie := cfg.Env != "dev"
	rps, burst := cfg.LoginRateRPS, cfg.LoginRateBurst
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 5
	}
	limiter := NewRateLimiter(rps, burst)
	r.With(limiter.Middleware).Post("/login", loginHandler(cfg.Employees, cfg.Tokens, secureCookie))
	r.Post("/logout", logoutHandler(secureCookie))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Tokens))

		r.Get("/me", meHandler(cfg.Employees))

		// Courses and sessions
		r.Post("/appointments", createAppointmentHandler(cfg.Appointments))
		r.Get("/appointments", listAppointmentsHandler(cfg.Appointments))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
		r.Delete("/appointments/{id}", deleteAppointmentHandler(cfg.Appointments))
		r.Post("/appointments/{id}/repeat", repeatAppointmentHandler(cfg.Appointments))
		r.Get("/sessions/{id}", getSessionHandler(cfg.Appointments))
		r.Patch("/sessions/{id}", updateSessionHandler(cfg.Appointments))

		// Employees
		r.Post("/employees", createEmployeeHandler(cfg.Employees))
		r.Get("/employees", listEmployeesHandler(cfg.Employees))
		r.Get("/employees/{id}", getEmployeeHandler(cfg.Employees))
		r.Patch("/employees/{id}", updateEmployeeHandler(cfg.Employees))
		r.Delete("/employees/{id}", deleteEmployeeHandler(cfg.Employees))
		r.Post("/employees/{id}/reassign", reassignEmployeeHandler(cfg.Employees))

		// Patients and clinical records
		r.Post("/patients", createPatientHandler(cfg.Patients))
		r.Get("/patients", listPatientsHandler(cfg.Patients))
		r.Get("/patients/{id}", getPatientHandler(cfg.Patients))
		r.Patch("/patients/{id}", updatePatientHandler(cfg.Patients))
		r.Delete("/patients/{id}", deletePatientHandler(cfg.Patients))
		r.Post("/patients/{id}/records", createRecordHandler(cfg.Patients))
		r.Get("/patients/{id}/records", listRecordsHandler(cfg.Patients))
		r.Get("/records/{id}", getRecordHandler(cfg.Patients))
		r.Delete("/records/{id}", deleteRecordHandler(cfg.Patients))
	})

	return r
}

package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	// WithTx runs fn against a repository bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	GetPatientByID(ctx context.Context, id uuid.UUID) (*PatientSummary, error)
	GetEmployeeByID(ctx context.Context, id uuid.UUID) (*EmployeeSummary, error)
	GetClinicalRecordByID(ctx context.Context, id uuid.UUID) (*ClinicalRecordSummary, error)

	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, error)
	// UpdateAppointmentEmployee reassigns a course. Store implementations keep
	// the per-session employee copy in step.
	UpdateAppointmentEmployee(ctx context.Context, id, employeeID uuid.UUID) error
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	// CreateSession stores s under the course assigned to employeeID.
	CreateSession(ctx context.Context, employeeID uuid.UUID, s *Session) error
	GetSessionByID(ctx context.Context, id uuid.UUID) (*Session, error)
	ListSessions(ctx context.Context, appointmentID uuid.UUID) ([]Session, error)
	UpdateSession(ctx context.Context, s *Session) error
	// RenumberSessions rewrites session numbers as 1..N in date order.
	RenumberSessions(ctx context.Context, appointmentID uuid.UUID) error

	// FindOverlappingSession returns a non-cancelled session of employeeID
	// starting inside [dayStart, dayEnd] whose window intersects [start, end),
	// or nil when there is none.
	FindOverlappingSession(ctx context.Context, employeeID uuid.UUID, dayStart, dayEnd, start, end time.Time, excludeID *uuid.UUID) (*Session, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}

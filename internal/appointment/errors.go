package appointment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrAppointmentNotFound    = errors.New("appointment not found")
	ErrSessionNotFound        = errors.New("session not found")
	ErrPatientNotFound        = errors.New("patient not found")
	ErrEmployeeNotFound       = errors.New("employee not found")
	ErrClinicalRecordNotFound = errors.New("clinical record not found")
	ErrInvalidSchedule        = errors.New("session date must be today or later")
	ErrSchedulingConflict     = errors.New("employee already has a session in that window")
	ErrInvalidState           = errors.New("operation not allowed in the current state")
	ErrEmployeeBusy           = errors.New("employee calendar is being changed, please retry")
)

// ConflictError identifies the booking that blocked a proposed window.
type ConflictError struct {
	EmployeeID uuid.UUID
	At         time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("employee %s already has a session at %s", e.EmployeeID, e.At.UTC().Format(time.RFC3339))
}

func (e *ConflictError) Unwrap() error { return ErrSchedulingConflict }

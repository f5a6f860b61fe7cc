package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/employee"
	"github.com/hackgods/clinic-scheduling/internal/patient"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// handleError maps domain errors to responses. Anything unrecognised is
// logged and answered with a bare 500.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *appointment.ConflictError

	switch {
	case errors.Is(err, appointment.ErrValidation),
		errors.Is(err, employee.ErrValidation),
		errors.Is(err, patient.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, appointment.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, "invalid_schedule", err.Error())

	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound),
		errors.Is(err, patient.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrEmployeeNotFound),
		errors.Is(err, employee.ErrEmployeeNotFound):
		writeError(w, http.StatusNotFound, "employee_not_found", err.Error())
	case errors.Is(err, appointment.ErrClinicalRecordNotFound),
		errors.Is(err, patient.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "clinical_record_not_found", err.Error())

	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ConflictResponse{
			Error:      "scheduling_conflict",
			Details:    err.Error(),
			EmployeeID: conflict.EmployeeID,
			At:         conflict.At.In(locationFrom(r.Context())),
		})
	case errors.Is(err, appointment.ErrSchedulingConflict):
		writeError(w, http.StatusConflict, "scheduling_conflict", err.Error())
	case errors.Is(err, appointment.ErrEmployeeBusy),
		errors.Is(err, employee.ErrEmployeeBusy):
		writeError(w, http.StatusConflict, "employee_busy", err.Error())
	case errors.Is(err, appointment.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, employee.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email_taken", err.Error())
	case errors.Is(err, patient.ErrCPFTaken):
		writeError(w, http.StatusConflict, "cpf_taken", err.Error())
	case errors.Is(err, employee.ErrReassignConflict):
		writeError(w, http.StatusConflict, "reassign_conflict", err.Error())

	case errors.Is(err, employee.ErrUnauthorized),
		errors.Is(err, employee.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, employee.ErrForbidden),
		errors.Is(err, employee.ErrCannotDeleteAdmin),
		errors.Is(err, employee.ErrCannotDeleteSelf),
		errors.Is(err, employee.ErrCannotDemoteSelf):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())

	default:
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("request_id", GetRequestID(r.Context())).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// ConflictResponse names the booking that blocked the request.
type ConflictResponse struct {
	Error      string    `json:"error"`
	Details    string    `json:"details,omitempty"`
	EmployeeID uuid.UUID `json:"employeeId"`
	At         time.Time `json:"at"`
}

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
)

func weekdays(days []int) ([]time.Weekday, error) {
	out, err := calendar.ParseWeekdays(days)
	if err != nil {
		return nil, fmt.Errorf("%w: daysOfWeek: %v", appointment.ErrValidation, err)
	}
	return out, nil
}

func parseRequiredID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a UUID", appointment.ErrValidation, field)
	}
	return id, nil
}

func (req CreateAppointmentRequest) toCourseRequest(loc *time.Location) (appointment.CourseRequest, error) {
	var (
		out appointment.CourseRequest
		err error
	)
	if out.PatientID, err = parseRequiredID("patientId", req.PatientID); err != nil {
		return out, err
	}
	if out.EmployeeID, err = parseRequiredID("employeeId", req.EmployeeID); err != nil {
		return out, err
	}
	if out.ClinicalRecordID, err = parseRequiredID("clinicalRecordId", req.ClinicalRecordID); err != nil {
		return out, err
	}
	if req.AppointmentDate == "" {
		return out, fmt.Errorf("%w: appointmentDate is required", appointment.ErrValidation)
	}
	if out.Start, err = parseInstant(req.AppointmentDate, loc); err != nil {
		return out, fmt.Errorf("%w: appointmentDate: %v", appointment.ErrValidation, err)
	}
	if out.Weekdays, err = weekdays(req.DaysOfWeek); err != nil {
		return out, err
	}
	out.Duration = req.Duration
	out.TotalSessions = req.TotalSessions
	return out, nil
}

func courseCreated(c *appointment.Course) CourseCreatedResponse {
	return CourseCreatedResponse{AppointmentID: c.Appointment.ID, SessionIDs: c.SessionIDs()}
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		courseReq, err := req.toCourseRequest(locationFrom(r.Context()))
		if err != nil {
			handleError(w, r, err)
			return
		}

		course, err := svc.CreateCourse(r.Context(), courseReq)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, courseCreated(course))
	}
}

func repeatAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req RepeatAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		days, err := weekdays(req.DaysOfWeek)
		if err != nil {
			handleError(w, r, err)
			return
		}

		course, err := svc.RepeatCourse(r.Context(), id, req.TotalSessions, days)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, courseCreated(course))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc := locationFrom(r.Context())
		q := r.URL.Query()

		query := appointment.ListQuery{Filter: q.Get("filter")}
		var err error
		if query.From, err = parseBound(q.Get("startDate"), loc, false); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "startDate: "+err.Error())
			return
		}
		if query.To, err = parseBound(q.Get("endDate"), loc, true); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "endDate: "+err.Error())
			return
		}
		if query.EmployeeID, err = parseOptionalUUID(q.Get("employeeId")); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "employeeId must be a UUID")
			return
		}
		if query.PatientID, err = parseOptionalUUID(q.Get("patientId")); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "patientId must be a UUID")
			return
		}

		courses, err := svc.ListCourses(r.Context(), query)
		if err != nil {
			handleError(w, r, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(courses))
		for _, c := range courses {
			out = append(out, toAppointmentResponse(c, loc))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		detail, err := svc.GetCourse(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*detail, locationFrom(r.Context())))
	}
}

func deleteAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := svc.DeleteCourse(r.Context(), id); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func getSessionHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		sess, err := svc.GetSession(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionResponse(*sess, locationFrom(r.Context())))
	}
}

func (req UpdateSessionRequest) toPatch(loc *time.Location) (appointment.SessionPatch, error) {
	patch := appointment.SessionPatch{Duration: req.Duration, Progress: req.Progress}
	if req.AppointmentDate != nil {
		t, err := parseInstant(*req.AppointmentDate, loc)
		if err != nil {
			return patch, fmt.Errorf("%w: appointmentDate: %v", appointment.ErrValidation, err)
		}
		patch.AppointmentDate = &t
	}
	if req.EmployeeID != nil {
		id, err := parseRequiredID("employeeId", *req.EmployeeID)
		if err != nil {
			return patch, err
		}
		patch.EmployeeID = &id
	}
	if req.Status != nil {
		st, err := appointment.ParseStatus(*req.Status)
		if err != nil {
			return patch, err
		}
		patch.Status = &st
	}
	return patch, nil
}

func updateSessionHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req UpdateSessionRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		loc := locationFrom(r.Context())
		patch, err := req.toPatch(loc)
		if err != nil {
			handleError(w, r, err)
			return
		}

		sess, err := svc.UpdateSession(r.Context(), id, patch)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionResponse(*sess, loc))
	}
}

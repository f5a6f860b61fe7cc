package api

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/employee"
)

func createEmployeeHandler(svc *employee.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateEmployeeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		e, err := svc.Create(r.Context(), CallerID(r.Context()), employee.CreateInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			IsAdmin:  req.IsAdmin,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toEmployeeResponse(*e, locationFrom(r.Context())))
	}
}

func listEmployeesHandler(svc *employee.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context())
		if err != nil {
			handleError(w, r, err)
			return
		}
		loc := locationFrom(r.Context())
		out := make([]EmployeeResponse, 0, len(list))
		for _, e := range list {
			out = append(out, toEmployeeResponse(e, loc))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getEmployeeHandler(svc *employee.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		e, err := svc.Get(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toEmployeeResponse(*e, locationFrom(r.Context())))
	}
}

func updateEmployeeHandler(svc *employee.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req UpdateEmployeeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		e, err := svc.Update(r.Context(), CallerID(r.Context()), id, employee.UpdateInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			IsAdmin:  req.IsAdmin,
		})
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toEmployeeResponse(*e, locationFrom(r.Context())))
	}
}

func deleteEmployeeHandler(svc *employee.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), CallerID(r.Context()), id); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func reassignEmployeeHandler(svc *employee.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, ok := pathID(w, r)
		if !ok {
			return
		}
		var req ReassignRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		to, err := uuid.Parse(req.ToEmployeeID)
		if err != nil {
			handleError(w, r, fmt.Errorf("%w: toEmployeeId must be a UUID", employee.ErrValidation))
			return
		}

		n, err := svc.Reassign(r.Context(), CallerID(r.Context()), from, to)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ReassignResponse{Reassigned: n})
	}
}

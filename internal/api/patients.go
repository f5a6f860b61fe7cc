package api

import (
	"net/http"

	"github.com/hackgods/clinic-scheduling/internal/patient"
)

func createPatientHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PatientRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, err := req.toPatient()
		if err != nil {
			handleError(w, r, err)
			return
		}
		p, err := svc.Create(r.Context(), in)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPatientResponse(*p, locationFrom(r.Context())))
	}
}

func listPatientsHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context(), r.URL.Query().Get("search"))
		if err != nil {
			handleError(w, r, err)
			return
		}
		loc := locationFrom(r.Context())
		out := make([]PatientResponse, 0, len(list))
		for _, p := range list {
			out = append(out, toPatientResponse(p, loc))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getPatientHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		d, err := svc.Get(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		loc := locationFrom(r.Context())
		resp := toPatientResponse(d.Patient, loc)
		resp.Records = make([]ClinicalRecordResponse, 0, len(d.Records))
		for _, rec := range d.Records {
			resp.Records = append(resp.Records, toRecordResponse(rec, loc))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func updatePatientHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req PatientRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, err := req.toPatient()
		if err != nil {
			handleError(w, r, err)
			return
		}
		p, err := svc.Update(r.Context(), id, in)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPatientResponse(*p, locationFrom(r.Context())))
	}
}

func deletePatientHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func createRecordHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := pathID(w, r)
		if !ok {
			return
		}
		var req ClinicalRecordRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		in, err := req.toRecord()
		if err != nil {
			handleError(w, r, err)
			return
		}
		rec, err := svc.AddRecord(r.Context(), patientID, in)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toRecordResponse(*rec, locationFrom(r.Context())))
	}
}

func listRecordsHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := pathID(w, r)
		if !ok {
			return
		}
		recs, err := svc.ListRecords(r.Context(), patientID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		loc := locationFrom(r.Context())
		out := make([]ClinicalRecordResponse, 0, len(recs))
		for _, rec := range recs {
			out = append(out, toRecordResponse(rec, loc))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getRecordHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		rec, err := svc.GetRecord(r.Context(), id)
		if err != nil {
			handleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toRecordResponse(*rec, locationFrom(r.Context())))
	}
}

func deleteRecordHandler(svc *patient.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := svc.DeleteRecord(r.Context(), id); err != nil {
			handleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

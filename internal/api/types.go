package api

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/employee"
	"github.com/hackgods/clinic-scheduling/internal/patient"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Appointments

type CreateAppointmentRequest struct {
	PatientID        string `json:"patientId"`
	EmployeeID       string `json:"employeeId"`
	ClinicalRecordID string `json:"clinicalRecordId"`
	AppointmentDate  string `json:"appointmentDate"`
	Duration         int    `json:"duration"`
	TotalSessions    int    `json:"totalSessions"`
	DaysOfWeek       []int  `json:"daysOfWeek"`
}

type RepeatAppointmentRequest struct {
	TotalSessions int   `json:"totalSessions"`
	DaysOfWeek    []int `json:"daysOfWeek"`
}

type CourseCreatedResponse struct {
	AppointmentID uuid.UUID   `json:"appointmentId"`
	SessionIDs    []uuid.UUID `json:"sessionIds"`
}

type UpdateSessionRequest struct {
	AppointmentDate *string `json:"appointmentDate"`
	Duration        *int    `json:"duration"`
	EmployeeID      *string `json:"employeeId"`
	Status          *string `json:"status"`
	Progress        *string `json:"progress"`
}

type SessionResponse struct {
	ID              uuid.UUID `json:"id"`
	AppointmentID   uuid.UUID `json:"appointmentId"`
	AppointmentDate time.Time `json:"appointmentDate"`
	Duration        int       `json:"duration"`
	SessionNumber   int       `json:"sessionNumber"`
	Status          string    `json:"status"`
	Progress        *string   `json:"progress"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type PersonRef struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Phone *string   `json:"phone,omitempty"`
	Email *string   `json:"email,omitempty"`
}

type RecordRef struct {
	ID         uuid.UUID `json:"id"`
	CID        string    `json:"cid"`
	Allegation string    `json:"allegation"`
	Diagnosis  string    `json:"diagnosis"`
}

type AppointmentResponse struct {
	ID               uuid.UUID         `json:"id"`
	PatientID        uuid.UUID         `json:"patientId"`
	EmployeeID       uuid.UUID         `json:"employeeId"`
	ClinicalRecordID uuid.UUID         `json:"clinicalRecordId"`
	TotalSessions    int               `json:"totalSessions"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	Patient          *PersonRef        `json:"patient,omitempty"`
	Employee         *PersonRef        `json:"employee,omitempty"`
	ClinicalRecord   *RecordRef        `json:"clinicalRecord,omitempty"`
	Sessions         []SessionResponse `json:"sessions"`
}

func toSessionResponse(s appointment.Session, loc *time.Location) SessionResponse {
	return SessionResponse{
		ID:              s.ID,
		AppointmentID:   s.AppointmentID,
		AppointmentDate: s.AppointmentDate.In(loc),
		Duration:        s.Duration,
		SessionNumber:   s.SessionNumber,
		Status:          string(s.Status),
		Progress:        s.Progress,
		CreatedAt:       s.CreatedAt.In(loc),
		UpdatedAt:       s.UpdatedAt.In(loc),
	}
}

func toAppointmentResponse(d appointment.AppointmentDetail, loc *time.Location) AppointmentResponse {
	resp := AppointmentResponse{
		ID:               d.ID,
		PatientID:        d.PatientID,
		EmployeeID:       d.EmployeeID,
		ClinicalRecordID: d.ClinicalRecordID,
		TotalSessions:    d.TotalSessions,
		CreatedAt:        d.CreatedAt.In(loc),
		UpdatedAt:        d.UpdatedAt.In(loc),
		Sessions:         make([]SessionResponse, 0, len(d.Sessions)),
	}
	if d.Patient != nil {
		resp.Patient = &PersonRef{ID: d.Patient.ID, Name: d.Patient.Name, Phone: d.Patient.Phone, Email: d.Patient.Email}
	}
	if d.Employee != nil {
		resp.Employee = &PersonRef{ID: d.Employee.ID, Name: d.Employee.Name}
	}
	if d.ClinicalRecord != nil {
		resp.ClinicalRecord = &RecordRef{
			ID:         d.ClinicalRecord.ID,
			CID:        d.ClinicalRecord.CID,
			Allegation: d.ClinicalRecord.Allegation,
			Diagnosis:  d.ClinicalRecord.Diagnosis,
		}
	}
	for _, s := range d.Sessions {
		resp.Sessions = append(resp.Sessions, toSessionResponse(s, loc))
	}
	return resp
}

// Employees and auth

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type CreateEmployeeRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"isAdmin"`
}

type UpdateEmployeeRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	IsAdmin  *bool   `json:"isAdmin"`
}

type ReassignRequest struct {
	ToEmployeeID string `json:"toEmployeeId"`
}

type ReassignResponse struct {
	Reassigned int64 `json:"reassigned"`
}

type EmployeeResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toEmployeeResponse(e employee.Employee, loc *time.Location) EmployeeResponse {
	return EmployeeResponse{
		ID:        e.ID,
		Name:      e.Name,
		Email:     e.Email,
		IsAdmin:   e.IsAdmin,
		CreatedAt: e.CreatedAt.In(loc),
		UpdatedAt: e.UpdatedAt.In(loc),
	}
}

// Patients

type PatientRequest struct {
	Name        string  `json:"name"`
	CPF         string  `json:"cpf"`
	Phone       *string `json:"phone"`
	Email       *string `json:"email"`
	DateOfBirth *string `json:"dateOfBirth"`
}

func (p PatientRequest) toPatient() (patient.Patient, error) {
	out := patient.Patient{Name: p.Name, CPF: p.CPF, Phone: p.Phone, Email: p.Email}
	if p.DateOfBirth != nil && *p.DateOfBirth != "" {
		d, err := time.Parse(dateLayout, *p.DateOfBirth)
		if err != nil {
			return out, fmt.Errorf("%w: dateOfBirth must be YYYY-MM-DD", patient.ErrValidation)
		}
		out.BirthDate = &d
	}
	return out, nil
}

type ClinicalRecordRequest struct {
	CID        string  `json:"cid"`
	Covenant   *string `json:"covenant"`
	Expires    *string `json:"expires"`
	CNS        *string `json:"cns"`
	Allegation string  `json:"allegation"`
	Diagnosis  string  `json:"diagnosis"`
}

func (c ClinicalRecordRequest) toRecord() (patient.ClinicalRecord, error) {
	out := patient.ClinicalRecord{
		CID:        c.CID,
		Covenant:   c.Covenant,
		CNS:        c.CNS,
		Allegation: c.Allegation,
		Diagnosis:  c.Diagnosis,
	}
	if c.Expires != nil && *c.Expires != "" {
		d, err := time.Parse(dateLayout, *c.Expires)
		if err != nil {
			return out, fmt.Errorf("%w: expires must be YYYY-MM-DD", patient.ErrValidation)
		}
		out.Expires = &d
	}
	return out, nil
}

type ClinicalRecordResponse struct {
	ID         uuid.UUID `json:"id"`
	PatientID  uuid.UUID `json:"patientId"`
	CID        string    `json:"cid"`
	Covenant   *string   `json:"covenant"`
	Expires    *string   `json:"expires"`
	CNS        *string   `json:"cns"`
	Allegation string    `json:"allegation"`
	Diagnosis  string    `json:"diagnosis"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type PatientResponse struct {
	ID          uuid.UUID                `json:"id"`
	Name        string                   `json:"name"`
	CPF         string                   `json:"cpf"`
	Phone       *string                  `json:"phone"`
	Email       *string                  `json:"email"`
	DateOfBirth *string                  `json:"dateOfBirth"`
	CreatedAt   time.Time                `json:"createdAt"`
	UpdatedAt   time.Time                `json:"updatedAt"`
	Records     []ClinicalRecordResponse `json:"clinicalData,omitempty"`
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func toRecordResponse(c patient.ClinicalRecord, loc *time.Location) ClinicalRecordResponse {
	return ClinicalRecordResponse{
		ID:         c.ID,
		PatientID:  c.PatientID,
		CID:        c.CID,
		Covenant:   c.Covenant,
		Expires:    formatDate(c.Expires),
		CNS:        c.CNS,
		Allegation: c.Allegation,
		Diagnosis:  c.Diagnosis,
		CreatedAt:  c.CreatedAt.In(loc),
		UpdatedAt:  c.UpdatedAt.In(loc),
	}
}

func toPatientResponse(p patient.Patient, loc *time.Location) PatientResponse {
	return PatientResponse{
		ID:          p.ID,
		Name:        p.Name,
		CPF:         p.CPF,
		Phone:       p.Phone,
		Email:       p.Email,
		DateOfBirth: formatDate(p.BirthDate),
		CreatedAt:   p.CreatedAt.In(loc),
		UpdatedAt:   p.UpdatedAt.In(loc),
	}
}

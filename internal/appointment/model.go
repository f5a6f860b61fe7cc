package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Appointment is a course: a planned series of sessions for one patient
// with one employee under one clinical record.
type Appointment struct {
	ID               uuid.UUID
	PatientID        uuid.UUID
	EmployeeID       uuid.UUID
	ClinicalRecordID uuid.UUID
	TotalSessions    int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Session is one occurrence of a course. AppointmentDate is always UTC and
// Duration is in minutes.
type Session struct {
	ID              uuid.UUID
	AppointmentID   uuid.UUID
	AppointmentDate time.Time
	Duration        int
	SessionNumber   int
	Status          Status
	Progress        *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s Session) EndsAt() time.Time {
	return s.AppointmentDate.Add(time.Duration(s.Duration) * time.Minute)
}

type PatientSummary struct {
	ID    uuid.UUID
	Name  string
	Phone *string
	Email *string
}

type EmployeeSummary struct {
	ID   uuid.UUID
	Name string
}

type ClinicalRecordSummary struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	CID        string
	Allegation string
	Diagnosis  string
}

// AppointmentDetail is a course with its participants and all sessions in
// session number order.
type AppointmentDetail struct {
	Appointment
	Patient        *PatientSummary
	Employee       *EmployeeSummary
	ClinicalRecord *ClinicalRecordSummary
	Sessions       []Session
}

// ListFilter narrows ListAppointments. A course matches when at least one
// of its sessions starts in [From, To).
type ListFilter struct {
	From       *time.Time
	To         *time.Time
	EmployeeID *uuid.UUID
	PatientID  *uuid.UUID
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

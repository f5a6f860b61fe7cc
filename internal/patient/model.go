package patient

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	CPF       string
	Phone     *string
	Email     *string
	BirthDate *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClinicalRecord is one diagnosis a patient is treated under. Courses
// reference a record.
type ClinicalRecord struct {
	ID         uuid.UUID
	PatientID  uuid.UUID
	CID        string
	Covenant   *string
	Expires    *time.Time
	CNS        *string
	Allegation string
	Diagnosis  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PatientDetail is a patient with their clinical records.
type PatientDetail struct {
	Patient
	Records []ClinicalRecord
}

var (
	ErrValidation      = errors.New("validation failed")
	ErrPatientNotFound = errors.New("patient not found")
	ErrRecordNotFound  = errors.New("clinical record not found")
	ErrCPFTaken        = errors.New("cpf already registered")
)

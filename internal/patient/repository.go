package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	ListPatients(ctx context.Context, search string) ([]Patient, error)
	UpdatePatient(ctx context.Context, p *Patient) error
	DeletePatient(ctx context.Context, id uuid.UUID) error

	CreateRecord(ctx context.Context, rec *ClinicalRecord) error
	GetRecord(ctx context.Context, id uuid.UUID) (*ClinicalRecord, error)
	ListRecords(ctx context.Context, patientID uuid.UUID) ([]ClinicalRecord, error)
	DeleteRecord(ctx context.Context, id uuid.UUID) error
}

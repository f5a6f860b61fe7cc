package patient

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, log: logger.With().Str("component", "patient").Logger()}
}

func (s *Service) Create(ctx context.Context, p Patient) (*Patient, error) {
	if err := normalize(&p); err != nil {
		return nil, err
	}
	p.ID = uuid.New()
	if err := s.repo.CreatePatient(ctx, &p); err != nil {
		return nil, err
	}
	s.log.Info().Stringer("patient_id", p.ID).Msg("patient created")
	return &p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*PatientDetail, error) {
	p, err := s.repo.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	recs, err := s.repo.ListRecords(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return &PatientDetail{Patient: *p, Records: recs}, nil
}

// List returns patients whose name or CPF contains search, or all of them.
func (s *Service) List(ctx context.Context, search string) ([]Patient, error) {
	return s.repo.ListPatients(ctx, strings.TrimSpace(search))
}

// Update replaces the editable fields of an existing patient.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p Patient) (*Patient, error) {
	cur, err := s.repo.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := normalize(&p); err != nil {
		return nil, err
	}
	p.ID = cur.ID
	p.CreatedAt = cur.CreatedAt
	if err := s.repo.UpdatePatient(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeletePatient(ctx, id); err != nil {
		return err
	}
	s.log.Info().Stringer("patient_id", id).Msg("patient deleted")
	return nil
}

func (s *Service) AddRecord(ctx context.Context, patientID uuid.UUID, rec ClinicalRecord) (*ClinicalRecord, error) {
	if _, err := s.repo.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}
	rec.CID = strings.TrimSpace(rec.CID)
	rec.Allegation = strings.TrimSpace(rec.Allegation)
	rec.Diagnosis = strings.TrimSpace(rec.Diagnosis)
	if rec.CID == "" || rec.Allegation == "" || rec.Diagnosis == "" {
		return nil, fmt.Errorf("%w: cid, allegation and diagnosis are required", ErrValidation)
	}

	rec.ID = uuid.New()
	rec.PatientID = patientID
	if err := s.repo.CreateRecord(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*ClinicalRecord, error) {
	return s.repo.GetRecord(ctx, id)
}

func (s *Service) ListRecords(ctx context.Context, patientID uuid.UUID) ([]ClinicalRecord, error) {
	if _, err := s.repo.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListRecords(ctx, patientID)
}

func (s *Service) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteRecord(ctx, id)
}

// NormalizeCPF drops everything but digits, so "123.456.789-01" and
// "12345678901" are the same CPF.
func NormalizeCPF(cpf string) string {
	return strings.Map(func(r rune) rune {
		if r < '0' || r > '9' {
			return -1
		}
		return r
	}, cpf)
}

func normalize(p *Patient) error {
	p.Name = strings.TrimSpace(p.Name)
	if len([]rune(p.Name)) < 2 {
		return fmt.Errorf("%w: name must have at least 2 characters", ErrValidation)
	}

	p.CPF = NormalizeCPF(p.CPF)
	if len(p.CPF) != 11 {
		return fmt.Errorf("%w: cpf must have exactly 11 digits", ErrValidation)
	}

	if p.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*p.Email))
		if email == "" {
			p.Email = nil
		} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
			return fmt.Errorf("%w: invalid email %q", ErrValidation, *p.Email)
		} else {
			p.Email = &email
		}
	}
	return nil
}

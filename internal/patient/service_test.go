package patient_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/patient"
	"github.com/hackgods/clinic-scheduling/internal/testutil"
)

func strPtr(s string) *string { return &s }

func TestCreatePatientValidation(t *testing.T) {
	svc := patient.NewService(testutil.NewMemStore().Patients(), zerolog.Nop())
	ctx := context.Background()

	tests := []struct {
		name string
		in   patient.Patient
	}{
		{"short name", patient.Patient{Name: "A", CPF: "12345678901"}},
		{"short cpf", patient.Patient{Name: "Ana", CPF: "1234567890"}},
		{"punctuated short cpf", patient.Patient{Name: "Ana", CPF: "123.456.789"}},
		{"cpf without digits", patient.Patient{Name: "Ana", CPF: "abc.def.ghi-jk"}},
		{"bad email", patient.Patient{Name: "Ana", CPF: "12345678901", Email: strPtr("ana@")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tt.in); !errors.Is(err, patient.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreateNormalizesPunctuatedCPF(t *testing.T) {
	svc := patient.NewService(testutil.NewMemStore().Patients(), zerolog.Nop())

	p, err := svc.Create(context.Background(), patient.Patient{Name: "Joana Reis", CPF: " 987.654.321-00 "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.CPF != "98765432100" {
		t.Errorf("cpf = %q", p.CPF)
	}
}

func TestPatientLifecycle(t *testing.T) {
	svc := patient.NewService(testutil.NewMemStore().Patients(), zerolog.Nop())
	ctx := context.Background()

	p, err := svc.Create(ctx, patient.Patient{Name: " Maria Lima ", CPF: "12345678901", Email: strPtr("Maria@Mail.com")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Name != "Maria Lima" || p.Email == nil || *p.Email != "maria@mail.com" {
		t.Errorf("created = %+v", p)
	}

	if _, err := svc.Create(ctx, patient.Patient{Name: "Other", CPF: "12345678901"}); !errors.Is(err, patient.ErrCPFTaken) {
		t.Errorf("duplicate cpf: err = %v", err)
	}
	if _, err := svc.Create(ctx, patient.Patient{Name: "Other", CPF: "123.456.789-01"}); !errors.Is(err, patient.ErrCPFTaken) {
		t.Errorf("duplicate punctuated cpf: err = %v", err)
	}

	rec, err := svc.AddRecord(ctx, p.ID, patient.ClinicalRecord{CID: "M54.5", Allegation: "back pain", Diagnosis: "lumbago"})
	if err != nil {
		t.Fatalf("add record: %v", err)
	}
	if _, err := svc.AddRecord(ctx, p.ID, patient.ClinicalRecord{CID: "M54.5"}); !errors.Is(err, patient.ErrValidation) {
		t.Errorf("incomplete record: err = %v", err)
	}
	if _, err := svc.AddRecord(ctx, uuid.New(), patient.ClinicalRecord{CID: "x", Allegation: "y", Diagnosis: "z"}); !errors.Is(err, patient.ErrPatientNotFound) {
		t.Errorf("record for unknown patient: err = %v", err)
	}

	detail, err := svc.Get(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Records) != 1 || detail.Records[0].ID != rec.ID {
		t.Errorf("records = %+v", detail.Records)
	}

	updated, err := svc.Update(ctx, p.ID, patient.Patient{Name: "Maria Lima Souza", CPF: "12345678901"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Maria Lima Souza" || updated.Email != nil {
		t.Errorf("updated = %+v", updated)
	}

	found, _ := svc.List(ctx, "souza")
	if len(found) != 1 {
		t.Errorf("search returned %d patients", len(found))
	}

	if err := svc.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetRecord(ctx, rec.ID); !errors.Is(err, patient.ErrRecordNotFound) {
		t.Errorf("records must go with their patient: err = %v", err)
	}
	if err := svc.Delete(ctx, p.ID); !errors.Is(err, patient.ErrPatientNotFound) {
		t.Errorf("second delete: err = %v", err)
	}
}

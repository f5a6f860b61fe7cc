package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/employee"
	"github.com/hackgods/clinic-scheduling/internal/patient"
)

// OpenPool connects to POSTGRES_DSN and applies the embedded migrations.
// The test is skipped when the variable is unset.
func OpenPool(t testing.TB) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set, skipping Postgres integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := db.NewMigrator(pool).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

// PgSeed is one employee plus a patient with a clinical record, stored in
// Postgres. Every call uses fresh ids so tests can share a database.
type PgSeed struct {
	Employee employee.Employee
	Patient  patient.Patient
	Record   patient.ClinicalRecord
}

func SeedPostgres(t testing.TB, pool *pgxpool.Pool) PgSeed {
	t.Helper()
	ctx := context.Background()

	emp := employee.Employee{
		ID:           uuid.New(),
		Name:         gofakeit.Name(),
		Email:        strings.ToLower(gofakeit.Username()) + "." + uuid.NewString()[:8] + "@clinic.test",
		PasswordHash: "x",
	}
	if err := employee.NewPgRepository(pool).Create(ctx, &emp); err != nil {
		t.Fatalf("seed employee: %v", err)
	}

	patients := patient.NewPgRepository(pool)
	pat := patient.Patient{
		ID:   uuid.New(),
		Name: gofakeit.Name(),
		CPF:  gofakeit.Numerify("###########"),
	}
	if err := patients.CreatePatient(ctx, &pat); err != nil {
		t.Fatalf("seed patient: %v", err)
	}

	rec := patient.ClinicalRecord{
		ID:         uuid.New(),
		PatientID:  pat.ID,
		CID:        "M54.5",
		Allegation: "lower back pain",
		Diagnosis:  "low back pain",
	}
	if err := patients.CreateRecord(ctx, &rec); err != nil {
		t.Fatalf("seed clinical record: %v", err)
	}

	return PgSeed{Employee: emp, Patient: pat, Record: rec}
}

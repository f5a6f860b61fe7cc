package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/employee"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/patient"
)

var complaints = []struct{ cid, allegation, diagnosis string }{
	{"M54.5", "lower back pain after lifting", "low back pain"},
	{"M75.1", "shoulder pain raising the arm", "rotator cuff syndrome"},
	{"M17.1", "knee stiffness in the morning", "primary knee osteoarthritis"},
	{"S83.5", "knee gave way playing football", "cruciate ligament sprain"},
	{"M54.2", "neck pain working at the computer", "cervicalgia"},
	{"G56.0", "tingling in the fingers at night", "carpal tunnel syndrome"},
}

func main() {
	var employees, patients int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the database with an admin, physiotherapists and patients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), employees, patients)
		},
	}
	cmd.Flags().IntVar(&employees, "employees", 10, "physiotherapists to create")
	cmd.Flags().IntVar(&patients, "patients", 200, "patients to create, each with one clinical record")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(ctx context.Context, employees, patients int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)
	logger.Info().Msg("seed starting")

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	staff := employee.NewPgRepository(pool)
	if err := seedAdmin(ctx, staff, logger); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if err := seedEmployees(ctx, staff, employees, logger); err != nil {
		return fmt.Errorf("seed employees: %w", err)
	}
	if err := seedPatients(ctx, patient.NewService(patient.NewPgRepository(pool), logger), patients, logger); err != nil {
		return fmt.Errorf("seed patients: %w", err)
	}

	logger.Info().Msg("seed complete")
	return nil
}

// seedAdmin creates the bootstrap admin unless that email already exists.
func seedAdmin(ctx context.Context, repo employee.Repository, logger zerolog.Logger) error {
	email := strings.ToLower(getEnv("SEED_ADMIN_EMAIL", "admin@clinic.local"))
	password := getEnv("SEED_ADMIN_PASSWORD", "admin123")

	if _, err := repo.GetByEmail(ctx, email); err == nil {
		logger.Info().Str("email", email).Msg("admin already present")
		return nil
	} else if !errors.Is(err, employee.ErrEmployeeNotFound) {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := repo.Create(ctx, &employee.Employee{
		ID:           uuid.New(),
		Name:         "Administrator",
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      true,
	}); err != nil {
		return err
	}
	logger.Info().Str("email", email).Msg("admin created")
	return nil
}

func seedEmployees(ctx context.Context, repo employee.Repository, count int, logger zerolog.Logger) error {
	hash, err := auth.HashPassword(getEnv("SEED_STAFF_PASSWORD", "fisio123"))
	if err != nil {
		return err
	}

	created := 0
	for i := 0; i < count; i++ {
		first, last := gofakeit.FirstName(), gofakeit.LastName()
		e := &employee.Employee{
			ID:           uuid.New(),
			Name:         first + " " + last,
			Email:        strings.ToLower(fmt.Sprintf("%s.%s%d@clinic.local", first, last, gofakeit.Number(1, 999))),
			PasswordHash: hash,
		}
		err := repo.Create(ctx, e)
		if errors.Is(err, employee.ErrEmailTaken) {
			continue
		}
		if err != nil {
			return err
		}
		created++
	}

	logger.Info().Int("created", created).Msg("physiotherapists seeded")
	return nil
}

func seedPatients(ctx context.Context, svc *patient.Service, count int, logger zerolog.Logger) error {
	oldest := time.Date(1940, 1, 1, 0, 0, 0, 0, time.UTC)
	youngest := time.Date(2010, 1, 1, 0, 0, 0, 0, time.UTC)

	created := 0
	for i := 0; i < count; i++ {
		phone := gofakeit.Phone()
		email := gofakeit.Email()
		born := gofakeit.DateRange(oldest, youngest)

		p, err := svc.Create(ctx, patient.Patient{
			Name:      gofakeit.Name(),
			CPF:       gofakeit.Numerify("###########"),
			Phone:     &phone,
			Email:     &email,
			BirthDate: &born,
		})
		if errors.Is(err, patient.ErrCPFTaken) {
			continue
		}
		if err != nil {
			return err
		}

		c := complaints[gofakeit.Number(0, len(complaints)-1)]
		if _, err := svc.AddRecord(ctx, p.ID, patient.ClinicalRecord{
			CID:        c.cid,
			Allegation: c.allegation,
			Diagnosis:  c.diagnosis,
		}); err != nil {
			return err
		}

		created++
		if created%100 == 0 {
			logger.Info().Int("created", created).Int("total", count).Msg("patients seeded")
		}
	}

	logger.Info().Int("created", created).Msg("patients seeded")
	return nil
}

package appointment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/testutil"
)

// bookRaw stores a one-session course in its own transaction without the
// service's availability check, so only the database constraint guards it.
func bookRaw(ctx context.Context, repo *appointment.PgRepository, seed testutil.PgSeed, at time.Time, duration int) (appointment.Session, error) {
	var s appointment.Session
	err := repo.WithTx(ctx, func(ctx context.Context, tx appointment.Repository) error {
		appt := appointment.Appointment{
			ID:               uuid.New(),
			PatientID:        seed.Patient.ID,
			EmployeeID:       seed.Employee.ID,
			ClinicalRecordID: seed.Record.ID,
			TotalSessions:    1,
		}
		if err := tx.CreateAppointment(ctx, &appt); err != nil {
			return err
		}
		s = appointment.Session{
			ID:              uuid.New(),
			AppointmentID:   appt.ID,
			AppointmentDate: at,
			Duration:        duration,
			SessionNumber:   1,
			Status:          appointment.StatusRequested,
		}
		return tx.CreateSession(ctx, seed.Employee.ID, &s)
	})
	return s, err
}

func TestPgExclusionConstraintRejectsOverlapAtCommit(t *testing.T) {
	pool := testutil.OpenPool(t)
	repo := appointment.NewPgRepository(pool)
	seed := testutil.SeedPostgres(t, pool)
	ctx := context.Background()

	if _, err := bookRaw(ctx, repo, seed, utc("2025-03-10T10:00:00Z"), 30); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	// the insert itself succeeds; the deferred constraint fires on commit
	var inserted bool
	err := repo.WithTx(ctx, func(ctx context.Context, tx appointment.Repository) error {
		appt := appointment.Appointment{
			ID:               uuid.New(),
			PatientID:        seed.Patient.ID,
			EmployeeID:       seed.Employee.ID,
			ClinicalRecordID: seed.Record.ID,
			TotalSessions:    1,
		}
		if err := tx.CreateAppointment(ctx, &appt); err != nil {
			return err
		}
		s := appointment.Session{
			ID:              uuid.New(),
			AppointmentID:   appt.ID,
			AppointmentDate: utc("2025-03-10T09:45:00Z"),
			Duration:        30,
			SessionNumber:   1,
			Status:          appointment.StatusRequested,
		}
		if err := tx.CreateSession(ctx, seed.Employee.ID, &s); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	if !inserted {
		t.Fatal("overlapping insert should only fail at commit")
	}
	if !errors.Is(err, appointment.ErrSchedulingConflict) {
		t.Fatalf("commit err = %v, want ErrSchedulingConflict", err)
	}

	if _, err := bookRaw(ctx, repo, seed, utc("2025-03-10T10:30:00Z"), 30); err != nil {
		t.Errorf("adjacent [10:30,11:00) booking: %v", err)
	}
	if _, err := bookRaw(ctx, repo, seed, utc("2025-03-10T09:30:00Z"), 30); err != nil {
		t.Errorf("adjacent [09:30,10:00) booking: %v", err)
	}

	other := testutil.SeedPostgres(t, pool)
	if _, err := bookRaw(ctx, repo, other, utc("2025-03-10T10:00:00Z"), 30); err != nil {
		t.Errorf("same time for another employee: %v", err)
	}
}

func TestPgCancelledSessionFreesTheWindow(t *testing.T) {
	pool := testutil.OpenPool(t)
	repo := appointment.NewPgRepository(pool)
	seed := testutil.SeedPostgres(t, pool)
	ctx := context.Background()

	s, err := bookRaw(ctx, repo, seed, utc("2025-03-11T14:00:00Z"), 60)
	if err != nil {
		t.Fatal(err)
	}
	s.Status = appointment.StatusCancelled
	if err := repo.UpdateSession(ctx, &s); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := bookRaw(ctx, repo, seed, utc("2025-03-11T14:00:00Z"), 60); err != nil {
		t.Errorf("booking over a cancelled session: %v", err)
	}
}

func TestPgFindOverlappingSession(t *testing.T) {
	pool := testutil.OpenPool(t)
	repo := appointment.NewPgRepository(pool)
	seed := testutil.SeedPostgres(t, pool)
	ctx := context.Background()

	booked, err := bookRaw(ctx, repo, seed, utc("2025-03-12T10:00:00Z"), 30)
	if err != nil {
		t.Fatal(err)
	}
	day := booked.AppointmentDate

	tests := []struct {
		name    string
		start   string
		minutes int
		exclude *uuid.UUID
		hit     bool
	}{
		{"same window", "2025-03-12T10:00:00Z", 30, nil, true},
		{"starts inside", "2025-03-12T10:15:00Z", 30, nil, true},
		{"ends inside", "2025-03-12T09:45:00Z", 30, nil, true},
		{"covers it", "2025-03-12T09:30:00Z", 90, nil, true},
		{"right after", "2025-03-12T10:30:00Z", 30, nil, false},
		{"right before", "2025-03-12T09:30:00Z", 30, nil, false},
		{"excluded itself", "2025-03-12T10:00:00Z", 30, &booked.ID, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := utc(tt.start)
			end := start.Add(time.Duration(tt.minutes) * time.Minute)
			got, err := repo.FindOverlappingSession(ctx, seed.Employee.ID,
				calendar.StartOfDay(day), calendar.EndOfDay(day), start, end, tt.exclude)
			if err != nil {
				t.Fatal(err)
			}
			if (got != nil) != tt.hit {
				t.Fatalf("hit = %v, want %v", got != nil, tt.hit)
			}
			if got != nil && got.ID != booked.ID {
				t.Errorf("found %s, want %s", got.ID, booked.ID)
			}
		})
	}

	// the day window bounds the search
	next := calendar.StartOfDay(day).AddDate(0, 0, 1)
	if got, err := repo.FindOverlappingSession(ctx, seed.Employee.ID,
		next, calendar.EndOfDay(next), day, day.Add(30*time.Minute), nil); err != nil || got != nil {
		t.Errorf("outside day window: got %+v, err %v", got, err)
	}
}

func newPgService(t *testing.T) (*appointment.Service, testutil.PgSeed) {
	t.Helper()
	pool := testutil.OpenPool(t)
	seed := testutil.SeedPostgres(t, pool)
	svc := appointment.NewService(appointment.NewPgRepository(pool), redisclient.NopLocker{},
		calendar.Fixed(now), config.Config{MaxSessions: 100}, zerolog.Nop())
	return svc, seed
}

func TestPgRescheduleRenumbersCourse(t *testing.T) {
	svc, seed := newPgService(t)
	ctx := context.Background()

	course, err := svc.CreateCourse(ctx, appointment.CourseRequest{
		PatientID:        seed.Patient.ID,
		EmployeeID:       seed.Employee.ID,
		ClinicalRecordID: seed.Record.ID,
		Start:            utc("2025-03-10T09:00:00Z"),
		Duration:         60,
		TotalSessions:    3,
		Weekdays:         []time.Weekday{time.Monday, time.Thursday},
	})
	if err != nil {
		t.Fatalf("create course: %v", err)
	}

	newDate := utc("2025-03-20T09:00:00Z")
	moved, err := svc.UpdateSession(ctx, course.Sessions[0].ID, appointment.SessionPatch{AppointmentDate: &newDate})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if !moved.AppointmentDate.Equal(newDate) || moved.SessionNumber != 3 {
		t.Errorf("moved session = %+v", moved)
	}

	detail, err := svc.GetCourse(ctx, course.Appointment.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []time.Time{utc("2025-03-13T09:00:00Z"), utc("2025-03-17T09:00:00Z"), newDate}
	if len(detail.Sessions) != len(want) {
		t.Fatalf("sessions = %d", len(detail.Sessions))
	}
	for i, s := range detail.Sessions {
		if s.SessionNumber != i+1 || !s.AppointmentDate.Equal(want[i]) {
			t.Errorf("[%d] = %s #%d", i, s.AppointmentDate, s.SessionNumber)
		}
	}

	// a second course cannot take the moved session's window
	_, err = svc.CreateCourse(ctx, appointment.CourseRequest{
		PatientID:        seed.Patient.ID,
		EmployeeID:       seed.Employee.ID,
		ClinicalRecordID: seed.Record.ID,
		Start:            utc("2025-03-20T09:30:00Z"),
		Duration:         30,
		TotalSessions:    1,
	})
	var conflict *appointment.ConflictError
	if !errors.As(err, &conflict) || !conflict.At.Equal(newDate) {
		t.Errorf("err = %v, want conflict at %s", err, newDate)
	}
}

func TestPgListAppointmentsFilters(t *testing.T) {
	pool := testutil.OpenPool(t)
	repo := appointment.NewPgRepository(pool)
	seed := testutil.SeedPostgres(t, pool)
	ctx := context.Background()

	early, err := bookRaw(ctx, repo, seed, utc("2025-03-10T08:00:00Z"), 30)
	if err != nil {
		t.Fatal(err)
	}
	late, err := bookRaw(ctx, repo, seed, utc("2025-03-17T08:00:00Z"), 30)
	if err != nil {
		t.Fatal(err)
	}

	ptr := func(s string) *time.Time { v := utc(s); return &v }
	stranger := uuid.New()
	tests := []struct {
		name   string
		filter appointment.ListFilter
		want   []uuid.UUID
	}{
		{"employee only", appointment.ListFilter{}, []uuid.UUID{early.AppointmentID, late.AppointmentID}},
		{"first week", appointment.ListFilter{From: ptr("2025-03-10T00:00:00Z"), To: ptr("2025-03-17T00:00:00Z")}, []uuid.UUID{early.AppointmentID}},
		{"from second week", appointment.ListFilter{From: ptr("2025-03-17T00:00:00Z")}, []uuid.UUID{late.AppointmentID}},
		{"end is exclusive", appointment.ListFilter{To: ptr("2025-03-10T08:00:00Z")}, nil},
		{"other patient", appointment.ListFilter{PatientID: &stranger}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.filter
			f.EmployeeID = &seed.Employee.ID
			got, err := repo.ListAppointments(ctx, f)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d courses, want %d", len(got), len(tt.want))
			}
			for i, d := range got {
				if d.ID != tt.want[i] {
					t.Errorf("[%d] = %s, want %s", i, d.ID, tt.want[i])
				}
				if len(d.Sessions) != 1 || d.Patient == nil || d.Patient.ID != seed.Patient.ID {
					t.Errorf("[%d] detail not loaded: %+v", i, d)
				}
			}
		})
	}
}

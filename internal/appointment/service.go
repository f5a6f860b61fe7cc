package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/calendar"
	"github.com/hackgods/clinic-scheduling/internal/config"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const (
	EventCourseCreated  = "COURSE_CREATED"
	EventCourseRepeated = "COURSE_REPEATED"
	EventSessionUpdated = "SESSION_UPDATED"
	EventCourseDeleted  = "COURSE_DELETED"
)

type Service struct {
	repo   Repository
	locker redisclient.Locker
	clock  calendar.Clock
	cfg    config.Config
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, clock calendar.Clock, cfg config.Config, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = calendar.System
	}
	return &Service{
		repo:   repo,
		locker: locker,
		clock:  clock,
		cfg:    cfg,
		log:    logger.With().Str("component", "appointment").Logger(),
	}
}

// CreateCourse books a new course. All sessions are written in one
// transaction while the employee's calendar lock is held, so either every
// session is stored or none is.
func (s *Service) CreateCourse(ctx context.Context, req CourseRequest) (*Course, error) {
	if err := req.validate(s.cfg.MaxSessions); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if !calendar.IsTodayOrFuture(req.Start, now) {
		return nil, ErrInvalidSchedule
	}

	dates := calendar.NextQualifyingDates(req.Start, req.TotalSessions, req.Weekdays, now)
	course, err := s.book(ctx, req, dates)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, course.Appointment.ID, EventCourseCreated, map[string]any{
		"patient_id":     req.PatientID.String(),
		"employee_id":    req.EmployeeID.String(),
		"total_sessions": len(course.Sessions),
		"first_session":  dates[0],
	})
	return course, nil
}

// RepeatCourse books a continuation of a finished course: same patient,
// employee, record, time of day and duration as its last session, on the
// requested weekdays after that session.
func (s *Service) RepeatCourse(ctx context.Context, sourceID uuid.UUID, total int, weekdays []time.Weekday) (*Course, error) {
	if err := validateTotal(total, s.cfg.MaxSessions); err != nil {
		return nil, err
	}
	if len(weekdays) == 0 {
		return nil, fmt.Errorf("%w: daysOfWeek needs at least one day", ErrValidation)
	}
	if err := calendar.ValidWeekdays(weekdays); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	src, err := s.repo.GetAppointmentByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.repo.ListSessions(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("%w: course has no sessions to repeat", ErrInvalidState)
	}
	if !AllTerminal(sessions) {
		return nil, fmt.Errorf("%w: repetition only allowed once all sessions are finalized or cancelled", ErrInvalidState)
	}

	last := latestSession(sessions)
	now := s.clock.Now()
	first := repeatStart(last, weekdays, now)
	dates := calendar.NextQualifyingDates(first, total, weekdays, now)

	req := CourseRequest{
		PatientID:        src.PatientID,
		EmployeeID:       src.EmployeeID,
		ClinicalRecordID: src.ClinicalRecordID,
		Start:            first,
		Duration:         last.Duration,
		TotalSessions:    total,
		Weekdays:         weekdays,
	}
	course, err := s.book(ctx, req, dates)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, course.Appointment.ID, EventCourseRepeated, map[string]any{
		"source_appointment_id": sourceID.String(),
		"total_sessions":        total,
		"first_session":         first,
	})
	return course, nil
}

// book persists a course for the given dates.
func (s *Service) book(ctx context.Context, req CourseRequest, dates []time.Time) (*Course, error) {
	appt := Appointment{
		ID:               uuid.New(),
		PatientID:        req.PatientID,
		EmployeeID:       req.EmployeeID,
		ClinicalRecordID: req.ClinicalRecordID,
		TotalSessions:    len(dates),
	}
	sessions := planSessions(appt.ID, dates, req.Duration)

	err := s.locker.WithEmployeeLock(ctx, req.EmployeeID, func(lockCtx context.Context) error {
		return s.repo.WithTx(lockCtx, func(ctx context.Context, tx Repository) error {
			if err := checkReferences(ctx, tx, req); err != nil {
				return err
			}
			if err := tx.CreateAppointment(ctx, &appt); err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}
			for i := range sessions {
				sess := &sessions[i]
				if err := CheckAvailable(ctx, tx, req.EmployeeID, sess.AppointmentDate, sess.Duration, nil); err != nil {
					return err
				}
				if err := tx.CreateSession(ctx, req.EmployeeID, sess); err != nil {
					return fmt.Errorf("create session %d: %w", sess.SessionNumber, err)
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, lockError(err)
	}

	return &Course{Appointment: appt, Sessions: sessions}, nil
}

func checkReferences(ctx context.Context, repo Repository, req CourseRequest) error {
	if _, err := repo.GetPatientByID(ctx, req.PatientID); err != nil {
		return err
	}
	if _, err := repo.GetEmployeeByID(ctx, req.EmployeeID); err != nil {
		return err
	}
	rec, err := repo.GetClinicalRecordByID(ctx, req.ClinicalRecordID)
	if err != nil {
		return err
	}
	if rec.PatientID != req.PatientID {
		return fmt.Errorf("%w: clinical record belongs to another patient", ErrValidation)
	}
	return nil
}

func (s *Service) GetCourse(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	return s.repo.GetAppointmentDetail(ctx, id)
}

// ListQuery selects courses by a named window or an explicit range.
// Filter wins when both are given.
type ListQuery struct {
	Filter     string
	From       *time.Time
	To         *time.Time
	EmployeeID *uuid.UUID
	PatientID  *uuid.UUID
}

func (s *Service) ListCourses(ctx context.Context, q ListQuery) ([]AppointmentDetail, error) {
	f := ListFilter{EmployeeID: q.EmployeeID, PatientID: q.PatientID}

	switch {
	case q.Filter != "":
		from, to, err := calendar.Window(q.Filter, s.clock.Now())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		f.From, f.To = &from, &to
	default:
		if q.From != nil && q.To != nil && q.From.After(*q.To) {
			return nil, fmt.Errorf("%w: startDate must not be after endDate", ErrValidation)
		}
		f.From, f.To = q.From, q.To
	}

	out, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return out, nil
}

func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.repo.GetSessionByID(ctx, id)
}

// SessionPatch carries the optional fields of a session update.
type SessionPatch struct {
	AppointmentDate *time.Time
	Duration        *int
	EmployeeID      *uuid.UUID
	Status          *Status
	Progress        *string
}

func (p SessionPatch) validate() error {
	if p.Duration != nil {
		if err := validateDuration(*p.Duration); err != nil {
			return err
		}
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, *p.Status)
	}
	if p.EmployeeID != nil && *p.EmployeeID == uuid.Nil {
		return fmt.Errorf("%w: employeeId must be a valid id", ErrValidation)
	}
	return nil
}

// UpdateSession applies a patch to one session: status transition,
// reschedule, progress note and reassignment of the parent course.
func (s *Service) UpdateSession(ctx context.Context, id uuid.UUID, patch SessionPatch) (*Session, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}

	sess, err := s.repo.GetSessionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	appt, err := s.repo.GetAppointmentByID(ctx, sess.AppointmentID)
	if err != nil {
		return nil, err
	}

	lockIDs := []uuid.UUID{appt.EmployeeID}
	if patch.EmployeeID != nil {
		lockIDs = append(lockIDs, *patch.EmployeeID)
	}

	var updated *Session
	err = redisclient.WithEmployeeLocks(ctx, s.locker, lockIDs, func(lockCtx context.Context) error {
		return s.repo.WithTx(lockCtx, func(ctx context.Context, tx Repository) error {
			var err error
			updated, err = s.applyPatch(ctx, tx, id, patch)
			return err
		})
	})
	if err != nil {
		return nil, lockError(err)
	}

	payload := map[string]any{"session_id": id.String(), "status": updated.Status}
	if patch.EmployeeID != nil {
		payload["employee_id"] = patch.EmployeeID.String()
	}
	if patch.AppointmentDate != nil {
		payload["appointment_date"] = updated.AppointmentDate
	}
	s.logEvent(ctx, updated.AppointmentID, EventSessionUpdated, payload)
	return updated, nil
}

func (s *Service) applyPatch(ctx context.Context, tx Repository, id uuid.UUID, patch SessionPatch) (*Session, error) {
	cur, err := tx.GetSessionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	appt, err := tx.GetAppointmentByID(ctx, cur.AppointmentID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	target := cur.Status
	if patch.Status != nil {
		target = *patch.Status
	}
	if err := ValidateTransition(cur.Status, target); err != nil {
		return nil, err
	}

	next := *cur
	next.Status = target
	if patch.AppointmentDate != nil {
		next.AppointmentDate = patch.AppointmentDate.UTC()
	}
	if patch.Duration != nil {
		next.Duration = *patch.Duration
	}

	moved := !next.AppointmentDate.Equal(cur.AppointmentDate)
	if moved || next.Duration != cur.Duration {
		if cur.Status.Terminal() || target == StatusFinalized {
			return nil, fmt.Errorf("%w: a %s session cannot be rescheduled", ErrInvalidState, target)
		}
		if moved && !calendar.IsTodayOrFuture(next.AppointmentDate, now) {
			return nil, ErrInvalidSchedule
		}
	}

	if patch.Progress != nil {
		if next.AppointmentDate.After(now) && target != StatusFinalized {
			return nil, fmt.Errorf("%w: progress can only be recorded once the session has started", ErrInvalidState)
		}
		next.Progress = patch.Progress
	}

	employeeID := appt.EmployeeID
	reassigned := patch.EmployeeID != nil && *patch.EmployeeID != appt.EmployeeID
	if reassigned {
		employeeID = *patch.EmployeeID
		if _, err := tx.GetEmployeeByID(ctx, employeeID); err != nil {
			return nil, err
		}
		if err := s.checkCourseFits(ctx, tx, employeeID, next); err != nil {
			return nil, err
		}
	} else if (moved || next.Duration != cur.Duration) && target != StatusCancelled {
		if err := CheckAvailable(ctx, tx, employeeID, next.AppointmentDate, next.Duration, &next.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.UpdateSession(ctx, &next); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	if reassigned {
		if err := tx.UpdateAppointmentEmployee(ctx, appt.ID, employeeID); err != nil {
			return nil, fmt.Errorf("reassign appointment: %w", err)
		}
	}
	if moved {
		if err := tx.RenumberSessions(ctx, appt.ID); err != nil {
			return nil, fmt.Errorf("renumber sessions: %w", err)
		}
		return tx.GetSessionByID(ctx, id)
	}
	return &next, nil
}

// checkCourseFits verifies every live session of changed's course fits in
// employeeID's calendar, with changed standing in for its stored version.
func (s *Service) checkCourseFits(ctx context.Context, tx Repository, employeeID uuid.UUID, changed Session) error {
	sessions, err := tx.ListSessions(ctx, changed.AppointmentID)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	for _, sess := range sessions {
		if sess.ID == changed.ID {
			sess = changed
		}
		if sess.Status == StatusCancelled {
			continue
		}
		if err := CheckAvailable(ctx, tx, employeeID, sess.AppointmentDate, sess.Duration, &sess.ID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteCourse removes a course and, by cascade, its sessions.
func (s *Service) DeleteCourse(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeleteAppointment(ctx, id); err != nil {
		return err
	}
	s.logEvent(ctx, id, EventCourseDeleted, map[string]any{})
	return nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event", eventType).Stringer("appointment_id", appointmentID).Msg("insert event log")
		return
	}
	s.log.Info().Str("event", eventType).Stringer("appointment_id", appointmentID).Msg("appointment event")
}

func lockError(err error) error {
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrEmployeeBusy
	}
	return err
}

func latestSession(sessions []Session) Session {
	sorted := append([]Session(nil), sessions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].AppointmentDate.Before(sorted[j].AppointmentDate)
	})
	return sorted[len(sorted)-1]
}

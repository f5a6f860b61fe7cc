package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/calendar"
)

// SlotMinutes is the booking granularity; durations are whole multiples.
const SlotMinutes = 30

// CourseRequest describes a new course to book.
type CourseRequest struct {
	PatientID        uuid.UUID
	EmployeeID       uuid.UUID
	ClinicalRecordID uuid.UUID
	Start            time.Time
	Duration         int
	TotalSessions    int
	Weekdays         []time.Weekday
}

// Course is a freshly booked appointment with its sessions in number order.
type Course struct {
	Appointment Appointment
	Sessions    []Session
}

func (c *Course) SessionIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(c.Sessions))
	for i, s := range c.Sessions {
		ids[i] = s.ID
	}
	return ids
}

func validateDuration(minutes int) error {
	if minutes < SlotMinutes || minutes%SlotMinutes != 0 {
		return fmt.Errorf("%w: duration must be a positive multiple of %d minutes", ErrValidation, SlotMinutes)
	}
	return nil
}

func validateTotal(total, max int) error {
	if total < 1 {
		return fmt.Errorf("%w: totalSessions must be at least 1", ErrValidation)
	}
	if max > 0 && total > max {
		return fmt.Errorf("%w: totalSessions must be at most %d", ErrValidation, max)
	}
	return nil
}

func (r CourseRequest) validate(maxSessions int) error {
	if r.PatientID == uuid.Nil || r.EmployeeID == uuid.Nil || r.ClinicalRecordID == uuid.Nil {
		return fmt.Errorf("%w: patientId, employeeId and clinicalRecordId are required", ErrValidation)
	}
	if r.Start.IsZero() {
		return fmt.Errorf("%w: appointmentDate is required", ErrValidation)
	}
	if err := validateDuration(r.Duration); err != nil {
		return err
	}
	if err := validateTotal(r.TotalSessions, maxSessions); err != nil {
		return err
	}
	if r.TotalSessions > 1 && len(r.Weekdays) == 0 {
		return fmt.Errorf("%w: daysOfWeek is required when totalSessions > 1", ErrValidation)
	}
	if err := calendar.ValidWeekdays(r.Weekdays); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// planSessions builds the unsaved sessions for dates, numbered in order.
func planSessions(appointmentID uuid.UUID, dates []time.Time, duration int) []Session {
	out := make([]Session, len(dates))
	for i, d := range dates {
		out[i] = Session{
			ID:              uuid.New(),
			AppointmentID:   appointmentID,
			AppointmentDate: d.UTC(),
			Duration:        duration,
			SessionNumber:   i + 1,
			Status:          StatusRequested,
		}
	}
	return out
}

// repeatStart is the first instant of a course that continues after last:
// the day after it, moved forward onto a requested weekday, at last's time
// of day.
func repeatStart(last Session, weekdays []time.Weekday, now time.Time) time.Time {
	return calendar.FirstOnOrAfter(last.AppointmentDate.UTC().AddDate(0, 0, 1), weekdays, now)
}

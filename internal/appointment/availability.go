package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/calendar"
)

// CheckAvailable fails with a *ConflictError when employeeID already has a
// booking on the day of start whose window intersects [start, start+duration).
// excludeID skips one session, used when moving that session in place.
func CheckAvailable(ctx context.Context, repo Repository, employeeID uuid.UUID, start time.Time, duration int, excludeID *uuid.UUID) error {
	start = start.UTC()
	end := start.Add(time.Duration(duration) * time.Minute)

	hit, err := repo.FindOverlappingSession(ctx, employeeID,
		calendar.StartOfDay(start), calendar.EndOfDay(start), start, end, excludeID)
	if err != nil {
		return fmt.Errorf("check availability: %w", err)
	}
	if hit != nil {
		return &ConflictError{EmployeeID: employeeID, At: hit.AppointmentDate}
	}
	return nil
}

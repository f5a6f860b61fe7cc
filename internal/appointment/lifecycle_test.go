package appointment

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTransitionMatrix(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusRequested, StatusConfirmed}: true,
		{StatusRequested, StatusCancelled}: true,
		{StatusRequested, StatusFinalized}: true,
		{StatusConfirmed, StatusFinalized}: true,
		{StatusConfirmed, StatusCancelled}: true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			err := ValidateTransition(from, to)
			want := from == to || allowed[[2]Status{from, to}]
			if want && err != nil {
				t.Errorf("%s -> %s: unexpected error %v", from, to, err)
			}
			if !want && !errors.Is(err, ErrInvalidState) {
				t.Errorf("%s -> %s: err = %v, want ErrInvalidState", from, to, err)
			}
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, from := range []Status{StatusFinalized, StatusCancelled} {
		if !from.Terminal() {
			t.Errorf("%s should be terminal", from)
		}
		for _, to := range allStatuses {
			if from.CanTransitionTo(to) {
				t.Errorf("%s must not move to %s", from, to)
			}
		}
	}
	if StatusRequested.Terminal() || StatusConfirmed.Terminal() {
		t.Error("requested and confirmed are not terminal")
	}
}

func TestParseStatus(t *testing.T) {
	got, err := ParseStatus(" confirmado ")
	if err != nil || got != StatusConfirmed {
		t.Errorf("ParseStatus = %q, %v", got, err)
	}
	if _, err := ParseStatus("DONE"); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown status: err = %v", err)
	}
	if err := ValidateTransition(StatusRequested, Status("DONE")); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown target: err = %v", err)
	}
}

func TestAllTerminal(t *testing.T) {
	done := []Session{{Status: StatusFinalized}, {Status: StatusCancelled}}
	if !AllTerminal(done) {
		t.Error("finalized + cancelled should be terminal")
	}
	if AllTerminal(append(done, Session{Status: StatusConfirmed})) {
		t.Error("a confirmed session keeps the course open")
	}
}

func TestPlanSessionsNumbersInOrder(t *testing.T) {
	apptID := uuid.New()
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	dates := []time.Time{base, base.AddDate(0, 0, 3), base.AddDate(0, 0, 7)}

	got := planSessions(apptID, dates, 60)
	for i, s := range got {
		if s.SessionNumber != i+1 {
			t.Errorf("[%d] number = %d", i, s.SessionNumber)
		}
		if s.Status != StatusRequested || s.Progress != nil {
			t.Errorf("[%d] new sessions start requested with no progress: %+v", i, s)
		}
		if s.AppointmentID != apptID || !s.AppointmentDate.Equal(dates[i]) || s.Duration != 60 {
			t.Errorf("[%d] unexpected session %+v", i, s)
		}
	}
	if got[0].ID == got[1].ID {
		t.Error("session ids must be unique")
	}
}

func TestSessionEndsAt(t *testing.T) {
	s := Session{AppointmentDate: time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC), Duration: 90}
	if want := time.Date(2025, 3, 10, 11, 30, 0, 0, time.UTC); !s.EndsAt().Equal(want) {
		t.Errorf("EndsAt = %s", s.EndsAt())
	}
}

func TestRepeatStartKeepsTimeOfDay(t *testing.T) {
	last := Session{AppointmentDate: time.Date(2025, 3, 11, 16, 30, 0, 0, time.UTC)} // Tuesday
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	got := repeatStart(last, []time.Weekday{time.Tuesday}, now)
	if want := time.Date(2025, 3, 18, 16, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestValidateDuration(t *testing.T) {
	for _, ok := range []int{30, 60, 90, 240} {
		if err := validateDuration(ok); err != nil {
			t.Errorf("%d: %v", ok, err)
		}
	}
	for _, bad := range []int{0, -30, 15, 45, 61} {
		if err := validateDuration(bad); !errors.Is(err, ErrValidation) {
			t.Errorf("%d: err = %v", bad, err)
		}
	}
}

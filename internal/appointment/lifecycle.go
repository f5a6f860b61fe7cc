package appointment

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusRequested Status = "SOLICITADO"
	StatusConfirmed Status = "CONFIRMADO"
	StatusFinalized Status = "FINALIZADO"
	StatusCancelled Status = "CANCELADO"
)

var allStatuses = []Status{StatusRequested, StatusConfirmed, StatusFinalized, StatusCancelled}

// transitions lists every permitted from -> to move. Terminal states have
// no outgoing edges.
var transitions = map[Status]map[Status]bool{
	StatusRequested: {
		StatusConfirmed: true,
		StatusFinalized: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusFinalized: true,
		StatusCancelled: true,
	},
	StatusFinalized: {},
	StatusCancelled: {},
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := transitions[st]; !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusFinalized || s == StatusCancelled
}

func (s Status) CanTransitionTo(to Status) bool {
	return transitions[s][to]
}

// ValidateTransition accepts a permitted move and the no-op move to the
// same state; everything else is ErrInvalidState.
func ValidateTransition(from, to Status) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, to)
	}
	if from == to || from.CanTransitionTo(to) {
		return nil
	}
	return fmt.Errorf("%w: cannot move session from %s to %s", ErrInvalidState, from, to)
}

// AllTerminal reports whether every session is finalized or cancelled.
func AllTerminal(sessions []Session) bool {
	for _, s := range sessions {
		if !s.Status.Terminal() {
			return false
		}
	}
	return true
}

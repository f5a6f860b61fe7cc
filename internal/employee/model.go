package employee

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Employee struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

var (
	ErrValidation         = errors.New("validation failed")
	ErrEmployeeNotFound   = errors.New("employee not found")
	ErrUnauthorized       = errors.New("authentication required")
	ErrForbidden          = errors.New("admin privileges required")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already used by another employee")
	ErrCannotDeleteAdmin  = errors.New("an admin cannot be deleted")
	ErrCannotDeleteSelf   = errors.New("you cannot delete yourself")
	ErrCannotDemoteSelf   = errors.New("you cannot remove your own admin privileges")
	ErrReassignConflict   = errors.New("target employee already has sessions at those times")
	ErrEmployeeBusy       = errors.New("employee calendar is being changed, please retry")
)

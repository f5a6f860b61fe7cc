package employee

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/auth"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const minPasswordLen = 6

type Service struct {
	repo   Repository
	locker redisclient.Locker
	log    zerolog.Logger
}

func NewService(repo Repository, locker redisclient.Locker, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		log:    logger.With().Str("component", "employee").Logger(),
	}
}

// Authenticate returns the employee owning email when password matches.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Employee, error) {
	e, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrEmployeeNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(e.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return e, nil
}

// requireAdmin loads the caller and fails unless they hold the admin flag.
func (s *Service) requireAdmin(ctx context.Context, callerID uuid.UUID) (*Employee, error) {
	caller, err := s.repo.GetByID(ctx, callerID)
	if errors.Is(err, ErrEmployeeNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin {
		return nil, ErrForbidden
	}
	return caller, nil
}

type CreateInput struct {
	Name     string
	Email    string
	Password string
	IsAdmin  bool
}

func (s *Service) Create(ctx context.Context, callerID uuid.UUID, in CreateInput) (*Employee, error) {
	if _, err := s.requireAdmin(ctx, callerID); err != nil {
		return nil, err
	}

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	email, err := validEmail(in.Email)
	if err != nil {
		return nil, err
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	e := &Employee{
		ID:           uuid.New(),
		Name:         in.Name,
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      in.IsAdmin,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}

	s.log.Info().Stringer("employee_id", e.ID).Bool("is_admin", e.IsAdmin).Msg("employee created")
	return e, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Employee, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Employee, error) {
	return s.repo.List(ctx)
}

type UpdateInput struct {
	Name     *string
	Email    *string
	Password *string
	IsAdmin  *bool
}

func (s *Service) Update(ctx context.Context, callerID, id uuid.UUID, in UpdateInput) (*Employee, error) {
	if _, err := s.requireAdmin(ctx, callerID); err != nil {
		return nil, err
	}
	if callerID == id && in.IsAdmin != nil && !*in.IsAdmin {
		return nil, ErrCannotDemoteSelf
	}

	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrValidation)
		}
		e.Name = name
	}
	if in.Email != nil {
		email, err := validEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		e.Email = email
	}
	if in.Password != nil {
		hash, err := hashPassword(*in.Password)
		if err != nil {
			return nil, err
		}
		e.PasswordHash = hash
	}
	if in.IsAdmin != nil {
		e.IsAdmin = *in.IsAdmin
	}

	if err := s.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// Reassign moves every course of fromID to toID while both calendars are
// locked. It can be called on its own or as part of Delete.
func (s *Service) Reassign(ctx context.Context, callerID, fromID, toID uuid.UUID) (int64, error) {
	if _, err := s.requireAdmin(ctx, callerID); err != nil {
		return 0, err
	}
	if fromID == toID {
		return 0, fmt.Errorf("%w: source and target employee are the same", ErrValidation)
	}

	var moved int64
	err := redisclient.WithEmployeeLocks(ctx, s.locker, []uuid.UUID{fromID, toID}, func(lockCtx context.Context) error {
		return s.repo.WithTx(lockCtx, func(ctx context.Context, tx Repository) error {
			if _, err := tx.GetByID(ctx, fromID); err != nil {
				return err
			}
			if _, err := tx.GetByID(ctx, toID); err != nil {
				return err
			}
			n, err := tx.ReassignAppointments(ctx, fromID, toID)
			moved = n
			return err
		})
	})
	if err != nil {
		return 0, lockError(err)
	}

	s.log.Info().Stringer("from", fromID).Stringer("to", toID).Int64("appointments", moved).Msg("appointments reassigned")
	return moved, nil
}

// Delete removes a non-admin employee after handing their courses to the
// caller, in one transaction.
func (s *Service) Delete(ctx context.Context, callerID, id uuid.UUID) error {
	if _, err := s.requireAdmin(ctx, callerID); err != nil {
		return err
	}
	if callerID == id {
		return ErrCannotDeleteSelf
	}

	target, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if target.IsAdmin {
		return ErrCannotDeleteAdmin
	}

	var moved int64
	err = redisclient.WithEmployeeLocks(ctx, s.locker, []uuid.UUID{id, callerID}, func(lockCtx context.Context) error {
		return s.repo.WithTx(lockCtx, func(ctx context.Context, tx Repository) error {
			n, err := tx.ReassignAppointments(ctx, id, callerID)
			if err != nil {
				return err
			}
			moved = n
			return tx.Delete(ctx, id)
		})
	})
	if err != nil {
		return lockError(err)
	}

	s.log.Info().Stringer("employee_id", id).Stringer("deleted_by", callerID).Int64("appointments_reassigned", moved).Msg("employee deleted")
	return nil
}

func lockError(err error) error {
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrEmployeeBusy
	}
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(raw string) (string, error) {
	email := normalizeEmail(raw)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email %q", ErrValidation, raw)
	}
	return email, nil
}

func hashPassword(pw string) (string, error) {
	if len(pw) < minPasswordLen {
		return "", fmt.Errorf("%w: password must have at least %d characters", ErrValidation, minPasswordLen)
	}
	hash, err := auth.HashPassword(pw)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

package employee

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	if r.pool == nil {
		return fn(ctx, r)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &PgRepository{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

func mapPgError(err error) error {
	switch {
	case db.IsCode(err, db.CodeUniqueViolation):
		return ErrEmailTaken
	case db.IsCode(err, db.CodeExclusionViolation):
		return ErrReassignConflict
	default:
		return err
	}
}

const employeeColumns = `id, name, email, password_hash, is_admin, created_at, updated_at`

func scanEmployee(row pgx.Row) (*Employee, error) {
	var e Employee
	err := row.Scan(&e.ID, &e.Name, &e.Email, &e.PasswordHash, &e.IsAdmin, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmployeeNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *PgRepository) Create(ctx context.Context, e *Employee) error {
	row := r.q.QueryRow(ctx, `
		INSERT INTO employees (id, name, email, password_hash, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+employeeColumns,
		e.ID, e.Name, e.Email, e.PasswordHash, e.IsAdmin)

	created, err := scanEmployee(row)
	if err != nil {
		return mapPgError(err)
	}
	*e = *created
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Employee, error) {
	return scanEmployee(r.q.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = $1`, id))
}

func (r *PgRepository) GetByEmail(ctx context.Context, email string) (*Employee, error) {
	return scanEmployee(r.q.QueryRow(ctx, `SELECT `+employeeColumns+` FROM employees WHERE email = $1`, email))
}

func (r *PgRepository) List(ctx context.Context) ([]Employee, error) {
	rows, err := r.q.Query(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *PgRepository) Update(ctx context.Context, e *Employee) error {
	row := r.q.QueryRow(ctx, `
		UPDATE employees
		SET name = $2,
		    email = $3,
		    password_hash = $4,
		    is_admin = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+employeeColumns,
		e.ID, e.Name, e.Email, e.PasswordHash, e.IsAdmin)

	updated, err := scanEmployee(row)
	if err != nil {
		return mapPgError(err)
	}
	*e = *updated
	return nil
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM employees WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEmployeeNotFound
	}
	return nil
}

func (r *PgRepository) ReassignAppointments(ctx context.Context, from, to uuid.UUID) (int64, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE appointments
		SET employee_id = $2,
		    updated_at = now()
		WHERE employee_id = $1
	`, from, to)
	if err != nil {
		return 0, mapPgError(err)
	}
	if _, err := r.q.Exec(ctx, `UPDATE sessions SET employee_id = $2 WHERE employee_id = $1`, from, to); err != nil {
		return 0, mapPgError(err)
	}
	return tag.RowsAffected(), nil
}

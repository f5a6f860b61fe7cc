package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
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
		// already inside a transaction
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
		return mapPgError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// mapPgError turns constraint violations into domain errors.
func mapPgError(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsCode(err, db.CodeExclusionViolation):
		return fmt.Errorf("%w: %s", ErrSchedulingConflict, db.ConstraintName(err))
	case db.IsCode(err, db.CodeForeignKeyMissing):
		return fmt.Errorf("%w: referenced row does not exist (%s)", ErrValidation, db.ConstraintName(err))
	default:
		return err
	}
}

const sessionColumns = `id, appointment_id, appointment_date, duration, session_number, status, progress, created_at, updated_at`

const appointmentColumns = `id, patient_id, employee_id, clinical_record_id, total_sessions, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.EmployeeID,
		&a.ClinicalRecordID,
		&a.TotalSessions,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(
		&s.ID,
		&s.AppointmentID,
		&s.AppointmentDate,
		&s.Duration,
		&s.SessionNumber,
		&s.Status,
		&s.Progress,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	s.AppointmentDate = s.AppointmentDate.UTC()
	return &s, nil
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var (
		d   AppointmentDetail
		p   PatientSummary
		e   EmployeeSummary
		rec ClinicalRecordSummary
	)
	err := row.Scan(
		&d.ID,
		&d.PatientID,
		&d.EmployeeID,
		&d.ClinicalRecordID,
		&d.TotalSessions,
		&d.CreatedAt,
		&d.UpdatedAt,
		&p.Name,
		&p.Phone,
		&p.Email,
		&e.Name,
		&rec.CID,
		&rec.Allegation,
		&rec.Diagnosis,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	p.ID = d.PatientID
	e.ID = d.EmployeeID
	rec.ID = d.ClinicalRecordID
	rec.PatientID = d.PatientID
	d.Patient, d.Employee, d.ClinicalRecord = &p, &e, &rec
	return &d, nil
}

func collectSessions(rows pgx.Rows) ([]Session, error) {
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*PatientSummary, error) {
	var p PatientSummary
	err := r.q.QueryRow(ctx, `
		SELECT id, name, phone, email
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Phone, &p.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) GetEmployeeByID(ctx context.Context, id uuid.UUID) (*EmployeeSummary, error) {
	var e EmployeeSummary
	err := r.q.QueryRow(ctx, `SELECT id, name FROM employees WHERE id = $1`, id).Scan(&e.ID, &e.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmployeeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *PgRepository) GetClinicalRecordByID(ctx context.Context, id uuid.UUID) (*ClinicalRecordSummary, error) {
	var c ClinicalRecordSummary
	err := r.q.QueryRow(ctx, `
		SELECT id, patient_id, cid, allegation, diagnosis
		FROM clinical_records
		WHERE id = $1
	`, id).Scan(&c.ID, &c.PatientID, &c.CID, &c.Allegation, &c.Diagnosis)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrClinicalRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	row := r.q.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, employee_id, clinical_record_id, total_sessions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.PatientID, a.EmployeeID, a.ClinicalRecordID, a.TotalSessions)

	created, err := scanAppointment(row)
	if err != nil {
		return mapPgError(err)
	}
	*a = *created
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

const detailSelect = `
	SELECT a.id, a.patient_id, a.employee_id, a.clinical_record_id, a.total_sessions, a.created_at, a.updated_at,
	       p.name, p.phone, p.email,
	       e.name,
	       cr.cid, cr.allegation, cr.diagnosis
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN employees e ON e.id = a.employee_id
	JOIN clinical_records cr ON cr.id = a.clinical_record_id`

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	d, err := scanDetail(r.q.QueryRow(ctx, detailSelect+` WHERE a.id = $1`, id))
	if err != nil {
		return nil, err
	}
	d.Sessions, err = r.ListSessions(ctx, id)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.EmployeeID != nil {
		where = append(where, "a.employee_id = "+arg(*f.EmployeeID))
	}
	if f.PatientID != nil {
		where = append(where, "a.patient_id = "+arg(*f.PatientID))
	}
	if f.From != nil || f.To != nil {
		cond := "EXISTS (SELECT 1 FROM sessions s WHERE s.appointment_id = a.id"
		if f.From != nil {
			cond += " AND s.appointment_date >= " + arg(f.From.UTC())
		}
		if f.To != nil {
			cond += " AND s.appointment_date < " + arg(f.To.UTC())
		}
		where = append(where, cond+")")
	}

	sql := detailSelect
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY a.created_at, a.id"

	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out   []AppointmentDetail
		ids   []uuid.UUID
		index = map[uuid.UUID]int{}
	)
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		index[d.ID] = len(out)
		ids = append(ids, d.ID)
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	srows, err := r.q.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE appointment_id = ANY($1)
		ORDER BY appointment_id, session_number
	`, ids)
	if err != nil {
		return nil, err
	}
	sessions, err := collectSessions(srows)
	if err != nil {
		return nil, err
	}
	for _, s := range sessions {
		i := index[s.AppointmentID]
		out[i].Sessions = append(out[i].Sessions, s)
	}
	return out, nil
}

func (r *PgRepository) UpdateAppointmentEmployee(ctx context.Context, id, employeeID uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE appointments
		SET employee_id = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, employeeID)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}

	if _, err := r.q.Exec(ctx, `UPDATE sessions SET employee_id = $2 WHERE appointment_id = $1`, id, employeeID); err != nil {
		return mapPgError(err)
	}
	return nil
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) CreateSession(ctx context.Context, employeeID uuid.UUID, s *Session) error {
	row := r.q.QueryRow(ctx, `
		INSERT INTO sessions (id, appointment_id, employee_id, appointment_date, ends_at, duration,
		                      session_number, status, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING `+sessionColumns,
		s.ID, s.AppointmentID, employeeID, s.AppointmentDate.UTC(), s.EndsAt().UTC(), s.Duration,
		s.SessionNumber, string(s.Status), s.Progress)

	created, err := scanSession(row)
	if err != nil {
		return mapPgError(err)
	}
	*s = *created
	return nil
}

func (r *PgRepository) GetSessionByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := r.q.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

func (r *PgRepository) ListSessions(ctx context.Context, appointmentID uuid.UUID) ([]Session, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE appointment_id = $1
		ORDER BY appointment_date, session_number
	`, appointmentID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

func (r *PgRepository) UpdateSession(ctx context.Context, s *Session) error {
	row := r.q.QueryRow(ctx, `
		UPDATE sessions
		SET appointment_date = $2,
		    ends_at = $3,
		    duration = $4,
		    status = $5,
		    progress = $6,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+sessionColumns,
		s.ID, s.AppointmentDate.UTC(), s.EndsAt().UTC(), s.Duration, string(s.Status), s.Progress)

	updated, err := scanSession(row)
	if err != nil {
		return mapPgError(err)
	}
	*s = *updated
	return nil
}

func (r *PgRepository) RenumberSessions(ctx context.Context, appointmentID uuid.UUID) error {
	_, err := r.q.Exec(ctx, `
		UPDATE sessions s
		SET session_number = o.rn,
		    updated_at = now()
		FROM (
			SELECT id, row_number() OVER (ORDER BY appointment_date, session_number) AS rn
			FROM sessions
			WHERE appointment_id = $1
		) o
		WHERE s.id = o.id
		  AND s.session_number <> o.rn
	`, appointmentID)
	return err
}

func (r *PgRepository) FindOverlappingSession(ctx context.Context, employeeID uuid.UUID, dayStart, dayEnd, start, end time.Time, excludeID *uuid.UUID) (*Session, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE employee_id = $1
		  AND status <> 'CANCELADO'
		  AND appointment_date BETWEEN $2 AND $3
		  AND appointment_date < $5
		  AND ends_at > $4
		  AND ($6::uuid IS NULL OR id <> $6::uuid)
		ORDER BY appointment_date
		LIMIT 1
	`, employeeID, dayStart.UTC(), dayEnd.UTC(), start.UTC(), end.UTC(), excludeID)

	s, err := scanSession(row)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	return s, err
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

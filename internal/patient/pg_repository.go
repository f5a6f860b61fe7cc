package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const patientColumns = `id, name, cpf, phone, email, birth_date, created_at, updated_at`

const recordColumns = `id, patient_id, cid, covenant, expires, cns, allegation, diagnosis, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.CPF, &p.Phone, &p.Email, &p.BirthDate, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanRecord(row pgx.Row) (*ClinicalRecord, error) {
	var c ClinicalRecord
	err := row.Scan(&c.ID, &c.PatientID, &c.CID, &c.Covenant, &c.Expires, &c.CNS,
		&c.Allegation, &c.Diagnosis, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &c, nil
}

func patientError(err error) error {
	if db.IsCode(err, db.CodeUniqueViolation) {
		return ErrCPFTaken
	}
	return err
}

func (r *PgRepository) CreatePatient(ctx context.Context, p *Patient) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, cpf, phone, email, birth_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING `+patientColumns,
		p.ID, p.Name, p.CPF, p.Phone, p.Email, p.BirthDate)

	created, err := scanPatient(row)
	if err != nil {
		return patientError(err)
	}
	*p = *created
	return nil
}

func (r *PgRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id))
}

func (r *PgRepository) ListPatients(ctx context.Context, search string) ([]Patient, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE $1::text = '' OR name ILIKE '%' || $1::text || '%' OR cpf LIKE $1::text || '%'
		ORDER BY name, id
	`, search)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PgRepository) UpdatePatient(ctx context.Context, p *Patient) error {
	row := r.pool.QueryRow(ctx, `
		UPDATE patients
		SET name = $2,
		    cpf = $3,
		    phone = $4,
		    email = $5,
		    birth_date = $6,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+patientColumns,
		p.ID, p.Name, p.CPF, p.Phone, p.Email, p.BirthDate)

	updated, err := scanPatient(row)
	if err != nil {
		return patientError(err)
	}
	*p = *updated
	return nil
}

func (r *PgRepository) DeletePatient(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

func (r *PgRepository) CreateRecord(ctx context.Context, rec *ClinicalRecord) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO clinical_records (id, patient_id, cid, covenant, expires, cns, allegation, diagnosis, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+recordColumns,
		rec.ID, rec.PatientID, rec.CID, rec.Covenant, rec.Expires, rec.CNS, rec.Allegation, rec.Diagnosis)

	created, err := scanRecord(row)
	if err != nil {
		if db.IsCode(err, db.CodeForeignKeyMissing) {
			return ErrPatientNotFound
		}
		return err
	}
	*rec = *created
	return nil
}

func (r *PgRepository) GetRecord(ctx context.Context, id uuid.UUID) (*ClinicalRecord, error) {
	return scanRecord(r.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM clinical_records WHERE id = $1`, id))
}

func (r *PgRepository) ListRecords(ctx context.Context, patientID uuid.UUID) ([]ClinicalRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM clinical_records
		WHERE patient_id = $1
		ORDER BY created_at, id
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClinicalRecord
	for rows.Next() {
		c, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *PgRepository) DeleteRecord(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM clinical_records WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

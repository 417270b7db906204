package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/patientcare/patient-service/internal/platform/db"
)

// emailConstraint is the unique constraint from migrations/001_patient.sql.
const emailConstraint = "patient_email_key"

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type patientRepoPG struct {
	db querier
}

// NewRepoPG returns a PostgreSQL store. q is normally a *pgxpool.Pool.
func NewRepoPG(q querier) PatientRepository {
	return &patientRepoPG{db: q}
}

const patientCols = `id, name, email, address, date_of_birth, registered_date, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Address, &p.DateOfBirth, &p.RegisteredDate, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.DateOfBirth = dateOnly(p.DateOfBirth)
	p.RegisteredDate = dateOnly(p.RegisteredDate)
	return &p, nil
}

func (r *patientRepoPG) List(ctx context.Context) ([]*Patient, error) {
	rows, err := r.db.Query(ctx, `SELECT `+patientCols+` FROM patient ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	patients := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return patients, nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.db.QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return p, nil
}

func (r *patientRepoPG) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patient WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check patient email: %w", err)
	}
	return exists, nil
}

func (r *patientRepoPG) ExistsByEmailExcludingID(ctx context.Context, email string, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patient WHERE email = $1 AND id <> $2)`, email, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check patient email: %w", err)
	}
	return exists, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.Exec(ctx, `
		INSERT INTO patient (`+patientCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Name, p.Email, p.Address, p.DateOfBirth, p.RegisteredDate, p.CreatedAt, p.UpdatedAt,
	)
	if db.IsUniqueViolation(err, emailConstraint) {
		return &EmailConflictError{Email: p.Email}
	}
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()

	tag, err := r.db.Exec(ctx, `
		UPDATE patient SET name = $2, email = $3, address = $4,
			date_of_birth = $5, registered_date = $6, updated_at = $7
		WHERE id = $1`,
		p.ID, p.Name, p.Email, p.Address, p.DateOfBirth, p.RegisteredDate, p.UpdatedAt,
	)
	if db.IsUniqueViolation(err, emailConstraint) {
		return &EmailConflictError{Email: p.Email}
	}
	if err != nil {
		return fmt.Errorf("update patient %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{ID: p.ID}
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM patient WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	return nil
}

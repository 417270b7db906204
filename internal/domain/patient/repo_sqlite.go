package patient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/patientcare/patient-service/internal/platform/db"
	"github.com/patientcare/patient-service/internal/platform/validation"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS patient (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL,
    email           TEXT NOT NULL UNIQUE,
    address         TEXT NOT NULL,
    date_of_birth   TEXT NOT NULL,
    registered_date TEXT NOT NULL,
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL
)`

// sqliteTimeLayout is fixed width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type patientRepoSQLite struct {
	db *sql.DB
}

// NewRepoSQLite returns an embedded store, creating its table if needed.
func NewRepoSQLite(ctx context.Context, conn *sql.DB) (PatientRepository, error) {
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("create patient table: %w", err)
	}
	return &patientRepoSQLite{db: conn}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPatientSQLite(row rowScanner) (*Patient, error) {
	var (
		p                   Patient
		id                  string
		dob, reg            string
		createdAt, updateAt string
	)
	if err := row.Scan(&id, &p.Name, &p.Email, &p.Address, &dob, &reg, &createdAt, &updateAt); err != nil {
		return nil, err
	}

	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse id %q: %w", id, err)
	}
	if p.DateOfBirth, err = validation.ParseDate(dob); err != nil {
		return nil, fmt.Errorf("parse date_of_birth %q: %w", dob, err)
	}
	if p.RegisteredDate, err = validation.ParseDate(reg); err != nil {
		return nil, fmt.Errorf("parse registered_date %q: %w", reg, err)
	}
	if p.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	if p.UpdatedAt, err = time.Parse(sqliteTimeLayout, updateAt); err != nil {
		return nil, fmt.Errorf("parse updated_at %q: %w", updateAt, err)
	}
	return &p, nil
}

func (r *patientRepoSQLite) List(ctx context.Context) ([]*Patient, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+patientCols+` FROM patient ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	patients := []*Patient{}
	for rows.Next() {
		p, err := scanPatientSQLite(rows)
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

func (r *patientRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatientSQLite(r.db.QueryRowContext(ctx, `SELECT `+patientCols+` FROM patient WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %s: %w", id, err)
	}
	return p, nil
}

func (r *patientRepoSQLite) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM patient WHERE email = ?)`, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check patient email: %w", err)
	}
	return exists, nil
}

func (r *patientRepoSQLite) ExistsByEmailExcludingID(ctx context.Context, email string, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM patient WHERE email = ? AND id <> ?)`, email, id.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check patient email: %w", err)
	}
	return exists, nil
}

func (r *patientRepoSQLite) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO patient (`+patientCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.Name, p.Email, p.Address,
		p.DateOfBirth.Format(validation.DateLayout), p.RegisteredDate.Format(validation.DateLayout),
		p.CreatedAt.Format(sqliteTimeLayout), p.UpdatedAt.Format(sqliteTimeLayout),
	)
	if db.IsSQLiteUniqueViolation(err) {
		return &EmailConflictError{Email: p.Email}
	}
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoSQLite) Update(ctx context.Context, p *Patient) error {
	p.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, `
		UPDATE patient SET name = ?, email = ?, address = ?,
			date_of_birth = ?, registered_date = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Email, p.Address,
		p.DateOfBirth.Format(validation.DateLayout), p.RegisteredDate.Format(validation.DateLayout),
		p.UpdatedAt.Format(sqliteTimeLayout), p.ID.String(),
	)
	if db.IsSQLiteUniqueViolation(err) {
		return &EmailConflictError{Email: p.Email}
	}
	if err != nil {
		return fmt.Errorf("update patient %s: %w", p.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update patient %s: %w", p.ID, err)
	}
	if n == 0 {
		return &NotFoundError{ID: p.ID}
	}
	return nil
}

func (r *patientRepoSQLite) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM patient WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete patient %s: %w", id, err)
	}
	return nil
}

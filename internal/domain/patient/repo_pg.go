package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepoPG creates a Postgres-backed patient registry. Atomicity of
// UpsertVitals rests on the single-row UPDATE: readers see the row before or
// after the statement, never in between.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const patientCols = `id, code, full_name_enc, national_id_enc,
	heart_rate, spo2, systolic_pressure, diastolic_pressure, temperature, respiratory_rate,
	status, observed_at`

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO patients (
			id, code, full_name_enc, national_id_enc,
			heart_rate, spo2, systolic_pressure, diastolic_pressure, temperature, respiratory_rate,
			status, observed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		p.ID, p.Code, p.EncryptedFullName, p.EncryptedNationalID,
		p.Vitals.HeartRate, p.Vitals.SpO2, p.Vitals.SystolicPressure, p.Vitals.DiastolicPressure,
		p.Vitals.Temperature, p.Vitals.RespiratoryRate,
		p.Status, p.Timestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("create %s: %w", p.Code, ErrConflict)
		}
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

func (r *repoPG) UpsertVitals(ctx context.Context, code string, v Vitals, status string, ts time.Time) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE patients SET
			heart_rate = $2, spo2 = $3, systolic_pressure = $4, diastolic_pressure = $5,
			temperature = $6, respiratory_rate = $7, status = $8, observed_at = $9
		WHERE code = $1
		RETURNING `+patientCols,
		code, v.HeartRate, v.SpO2, v.SystolicPressure, v.DiastolicPressure,
		v.Temperature, v.RespiratoryRate, status, ts,
	)
	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("upsert vitals %s: %w", code, ErrNotFound)
		}
		return nil, fmt.Errorf("upsert vitals: %w", err)
	}
	return p, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*Patient, error) {
	p, err := scanPatient(r.pool.QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get %s: %w", code, ErrNotFound)
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patients`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}

	query := `SELECT ` + patientCols + ` FROM patients ORDER BY code`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("list patients: %w", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	return patients, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatient(row rowScanner) (*Patient, error) {
	p := &Patient{}
	err := row.Scan(
		&p.ID, &p.Code, &p.EncryptedFullName, &p.EncryptedNationalID,
		&p.Vitals.HeartRate, &p.Vitals.SpO2, &p.Vitals.SystolicPressure, &p.Vitals.DiastolicPressure,
		&p.Vitals.Temperature, &p.Vitals.RespiratoryRate,
		&p.Status, &p.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/clinics"
)

type ClinicsRepo struct {
	db *sql.DB
}

func NewClinicsRepo(db *sql.DB) *ClinicsRepo {
	return &ClinicsRepo{db: db}
}

const clinicColumns = `
	id, name, phone, whatsapp, email,
	latitude, longitude,
	is_24_hour, is_available, is_support_hospital,
	status, created_at, updated_at
`

func (r *ClinicsRepo) Create(ctx context.Context, c clinics.Clinic) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clinics (
			id, name, phone, whatsapp, email,
			latitude, longitude,
			is_24_hour, is_available, is_support_hospital,
			status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		c.ID,
		c.Name,
		c.Phone,
		c.WhatsApp,
		c.Email,
		c.Latitude,
		c.Longitude,
		c.Is24Hour,
		c.IsAvailable,
		c.IsSupportHospital,
		string(c.Status),
		c.CreatedAt,
		c.UpdatedAt,
	)
	return err
}

func (r *ClinicsRepo) Update(ctx context.Context, c clinics.Clinic) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE clinics
		SET
			name = $2,
			phone = $3,
			whatsapp = $4,
			email = $5,
			latitude = $6,
			longitude = $7,
			is_24_hour = $8,
			is_available = $9,
			is_support_hospital = $10,
			status = $11,
			updated_at = $12
		WHERE id = $1
	`,
		c.ID,
		c.Name,
		c.Phone,
		c.WhatsApp,
		c.Email,
		c.Latitude,
		c.Longitude,
		c.Is24Hour,
		c.IsAvailable,
		c.IsSupportHospital,
		string(c.Status),
		c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return clinics.ErrNotFound
	}
	return nil
}

func (r *ClinicsRepo) GetByID(ctx context.Context, id string) (clinics.Clinic, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return clinics.Clinic{}, clinics.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT `+clinicColumns+`
		FROM clinics
		WHERE id = $1
	`, id)

	c, err := scanClinic(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return clinics.Clinic{}, clinics.ErrNotFound
		}
		return clinics.Clinic{}, err
	}
	return c, nil
}

func (r *ClinicsRepo) List(ctx context.Context) ([]clinics.Clinic, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+clinicColumns+`
		FROM clinics
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectClinics(rows)
}

func (r *ClinicsRepo) ListByIDs(ctx context.Context, ids []string) ([]clinics.Clinic, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	// ANY($1) con array; pgx stdlib lo mapea directo
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+clinicColumns+`
		FROM clinics
		WHERE id = ANY($1)
		ORDER BY created_at ASC
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectClinics(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClinic(row rowScanner) (clinics.Clinic, error) {
	var c clinics.Clinic
	var lat, lng sql.NullFloat64
	var status string

	if err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Phone,
		&c.WhatsApp,
		&c.Email,
		&lat,
		&lng,
		&c.Is24Hour,
		&c.IsAvailable,
		&c.IsSupportHospital,
		&status,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return clinics.Clinic{}, err
	}

	c.Status = clinics.Status(status)
	if lat.Valid {
		v := lat.Float64
		c.Latitude = &v
	}
	if lng.Valid {
		v := lng.Float64
		c.Longitude = &v
	}
	return c, nil
}

func collectClinics(rows *sql.Rows) ([]clinics.Clinic, error) {
	out := make([]clinics.Clinic, 0)
	for rows.Next() {
		c, err := scanClinic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/emergencies"
)

type EmergenciesRepo struct {
	db *sql.DB
}

func NewEmergenciesRepo(db *sql.DB) *EmergenciesRepo {
	return &EmergenciesRepo{db: db}
}

// pet y location van como JSONB: son snapshots anidados que este servicio
// nunca consulta por campo, solo lee enteros.
func (r *EmergenciesRepo) Create(ctx context.Context, er emergencies.EmergencyRequest) error {
	petJSON, err := marshalNullable(er.Pet)
	if err != nil {
		return err
	}
	locJSON, err := marshalNullable(er.Location)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO emergency_requests (
			id, symptom_text, pet, location,
			contact_name, contact_phone, contact_email,
			voice_transcript, voice_analysis,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		er.ID,
		er.SymptomText,
		petJSON,
		locJSON,
		er.ContactName,
		er.ContactPhone,
		er.ContactEmail,
		er.VoiceTranscript,
		er.VoiceAnalysis,
		er.CreatedAt,
	)
	return err
}

func (r *EmergenciesRepo) GetByID(ctx context.Context, id string) (emergencies.EmergencyRequest, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return emergencies.EmergencyRequest{}, emergencies.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT
			id, symptom_text, pet, location,
			contact_name, contact_phone, contact_email,
			voice_transcript, voice_analysis,
			created_at
		FROM emergency_requests
		WHERE id = $1
	`, id)

	var er emergencies.EmergencyRequest
	var petJSON, locJSON []byte

	if err := row.Scan(
		&er.ID,
		&er.SymptomText,
		&petJSON,
		&locJSON,
		&er.ContactName,
		&er.ContactPhone,
		&er.ContactEmail,
		&er.VoiceTranscript,
		&er.VoiceAnalysis,
		&er.CreatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return emergencies.EmergencyRequest{}, emergencies.ErrNotFound
		}
		return emergencies.EmergencyRequest{}, err
	}

	if len(petJSON) > 0 {
		var pet emergencies.PetInfo
		if err := json.Unmarshal(petJSON, &pet); err != nil {
			return emergencies.EmergencyRequest{}, err
		}
		er.Pet = &pet
	}
	if len(locJSON) > 0 {
		var loc emergencies.Location
		if err := json.Unmarshal(locJSON, &loc); err != nil {
			return emergencies.EmergencyRequest{}, err
		}
		er.Location = &loc
	}

	return er, nil
}

// marshalNullable devuelve nil (NULL en la columna) para punteros nil.
func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case *emergencies.PetInfo:
		if t == nil {
			return nil, nil
		}
	case *emergencies.Location:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

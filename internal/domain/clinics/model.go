package clinics

import "time"

// Status define el estado administrativo de una clínica en el directorio.
// @Enum active, inactive
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Clinic es la proyección de solo-lectura del directorio que consume el
// motor de broadcast. El CRUD completo vive en el subsistema de admin;
// acá solo importan contacto, coordenadas y flags de disponibilidad.
type Clinic struct {
	ID   string
	Name string

	Phone    string
	WhatsApp string // número con prefijo internacional; vacío = sin canal
	Email    string // vacío = sin canal

	Latitude  *float64
	Longitude *float64

	Is24Hour          bool
	IsAvailable       bool
	IsSupportHospital bool // partner de la red PetSOS

	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCoordinates reporta si la clínica tiene lat/lng cargadas.
func (c Clinic) HasCoordinates() bool {
	return c.Latitude != nil && c.Longitude != nil
}

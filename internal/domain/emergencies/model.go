package emergencies

import "time"

// EmergencyRequest es el snapshot inmutable de una emergencia reportada.
// Lo crea el intake (formulario o voz) y el motor de broadcast solo lo lee.
type EmergencyRequest struct {
	ID string

	// SymptomText es la descripción cruda del dueño.
	SymptomText string

	Pet      *PetInfo
	Location *Location

	ContactName  string
	ContactPhone string
	ContactEmail string

	// Campos derivados de la llamada de voz; vacíos si el intake fue por formulario.
	VoiceTranscript string
	VoiceAnalysis   string

	CreatedAt time.Time
}

// PetInfo es la información estructurada de la mascota tal como la dio
// el dueño. Profile viene cargado solo si la mascota está registrada.
type PetInfo struct {
	Species  string
	Breed    string
	AgeYears int

	Profile *PetProfile
}

// PetProfile es el perfil registrado de la mascota.
type PetProfile struct {
	Name         string
	MedicalNotes string

	// LastVisitClinicID habilita la detección de paciente existente
	// en el ranking de candidatas.
	LastVisitClinicID string
}

// Location admite GPS, texto libre, o ambos.
type Location struct {
	Latitude  *float64
	Longitude *float64
	Text      string
}

// HasCoordinates reporta si hay GPS utilizable.
func (l *Location) HasCoordinates() bool {
	return l != nil && l.Latitude != nil && l.Longitude != nil
}

// LastVisitClinicID devuelve la clínica de última visita, o vacío.
func (r EmergencyRequest) LastVisitClinicID() string {
	if r.Pet == nil || r.Pet.Profile == nil {
		return ""
	}
	return r.Pet.Profile.LastVisitClinicID
}

package broadcast

import (
	"fmt"
	"strings"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/emergencies"
)

// Section es un bloque {título, cuerpo} del mensaje de alerta.
// Componer sobre secciones (y no concatenación ad hoc) deja la composición
// testeable independiente del formato final.
type Section struct {
	Heading string
	Body    string
}

// ComposeSections arma las secciones de la alerta a partir del snapshot de
// la emergencia. Es pura: mismo request, mismas secciones. No sabe nada de
// destinatarios; el contenido es idéntico para todas las clínicas.
func ComposeSections(req emergencies.EmergencyRequest) []Section {
	sections := make([]Section, 0, 4)

	if s := petSection(req.Pet); s.Body != "" {
		sections = append(sections, s)
	}
	if s := detailsSection(req); s.Body != "" {
		sections = append(sections, s)
	}
	if s := contactSection(req); s.Body != "" {
		sections = append(sections, s)
	}
	if s := locationSection(req.Location); s.Body != "" {
		sections = append(sections, s)
	}

	return sections
}

// Render serializa las secciones al texto plano que viaja por los canales.
func Render(sections []Section) string {
	if len(sections) == 0 {
		return ""
	}

	parts := make([]string, 0, len(sections)+1)
	parts = append(parts, "PetSOS EMERGENCY ALERT")
	for _, s := range sections {
		parts = append(parts, fmt.Sprintf("[%s]\n%s", s.Heading, s.Body))
	}
	return strings.Join(parts, "\n\n")
}

func petSection(pet *emergencies.PetInfo) Section {
	s := Section{Heading: "Pet information"}
	if pet == nil {
		return s
	}

	lines := make([]string, 0, 5)
	if pet.Profile != nil && pet.Profile.Name != "" {
		lines = append(lines, "Name: "+pet.Profile.Name)
	}
	if pet.Species != "" {
		lines = append(lines, "Species: "+pet.Species)
	}
	if pet.Breed != "" {
		lines = append(lines, "Breed: "+pet.Breed)
	}
	if pet.AgeYears > 0 {
		lines = append(lines, fmt.Sprintf("Age: %d years", pet.AgeYears))
	}
	if pet.Profile != nil && pet.Profile.MedicalNotes != "" {
		lines = append(lines, "Medical notes: "+pet.Profile.MedicalNotes)
	}

	s.Body = strings.Join(lines, "\n")
	return s
}

// detailsSection prioriza la vía de voz: transcript + análisis AI cuando
// existen; si no, el texto crudo del síntoma.
func detailsSection(req emergencies.EmergencyRequest) Section {
	s := Section{Heading: "Emergency details"}

	if req.VoiceTranscript != "" {
		lines := []string{"Caller transcript: " + req.VoiceTranscript}
		if req.VoiceAnalysis != "" {
			lines = append(lines, "AI analysis: "+req.VoiceAnalysis)
		}
		s.Body = strings.Join(lines, "\n")
		return s
	}

	s.Body = req.SymptomText
	return s
}

func contactSection(req emergencies.EmergencyRequest) Section {
	s := Section{Heading: "Contact"}

	lines := make([]string, 0, 3)
	if req.ContactName != "" {
		lines = append(lines, "Name: "+req.ContactName)
	}
	if req.ContactPhone != "" {
		lines = append(lines, "Phone: "+req.ContactPhone)
	}
	if req.ContactEmail != "" {
		lines = append(lines, "Email: "+req.ContactEmail)
	}

	s.Body = strings.Join(lines, "\n")
	return s
}

func locationSection(loc *emergencies.Location) Section {
	s := Section{Heading: "Location"}
	if loc == nil {
		return s
	}

	lines := make([]string, 0, 3)
	if loc.HasCoordinates() {
		lines = append(lines, fmt.Sprintf("Coordinates: %.6f, %.6f", *loc.Latitude, *loc.Longitude))
		lines = append(lines, fmt.Sprintf("Map: https://www.google.com/maps?q=%.6f,%.6f", *loc.Latitude, *loc.Longitude))
	}
	if loc.Text != "" {
		lines = append(lines, "Address: "+loc.Text)
	}

	s.Body = strings.Join(lines, "\n")
	return s
}

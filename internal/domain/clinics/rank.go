package clinics

import (
	"math"
	"sort"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/platform/geo"
)

// RankInput son las señales de la emergencia que afectan el orden.
type RankInput struct {
	// Location es la ubicación del dueño; nil si no hay GPS.
	Location *geo.Point
	// LastVisitClinicID es la clínica de la última visita de la mascota
	// (detección de "paciente existente"); vacío si no se conoce.
	LastVisitClinicID string
}

// Rank ordena candidatas con la cadena estricta de desempate:
//  1. paciente existente (última visita == clínica)
//  2. partner (isSupportHospital)
//  3. distancia Haversine ascendente (sin coordenadas = al final del tier)
//  4. 24 horas
//
// Cada tier se evalúa solo si el anterior empató. Empates más allá de la
// cadena preservan el orden de entrada (sort estable).
// No muta el slice de entrada.
func Rank(in []Clinic, signals RankInput) []Clinic {
	out := make([]Clinic, len(in))
	copy(out, in)

	dist := func(c Clinic) float64 {
		if signals.Location == nil || !c.HasCoordinates() {
			return math.Inf(1)
		}
		return geo.DistanceKm(*signals.Location, geo.Point{Lat: *c.Latitude, Lng: *c.Longitude})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]

		aKnown := signals.LastVisitClinicID != "" && a.ID == signals.LastVisitClinicID
		bKnown := signals.LastVisitClinicID != "" && b.ID == signals.LastVisitClinicID
		if aKnown != bKnown {
			return aKnown
		}

		if a.IsSupportHospital != b.IsSupportHospital {
			return a.IsSupportHospital
		}

		da, db := dist(a), dist(b)
		if da != db {
			return da < db
		}

		if a.Is24Hour != b.Is24Hour {
			return a.Is24Hour
		}

		return false
	})

	return out
}

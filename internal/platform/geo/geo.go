package geo

import "math"

// earthRadiusKm según el modelo esférico estándar.
const earthRadiusKm = 6371.0

// Point es una coordenada WGS84 en grados.
type Point struct {
	Lat float64
	Lng float64
}

// DistanceKm calcula la distancia geodésica entre dos puntos con Haversine.
// Suficiente para ordenar clínicas por cercanía; no pretende precisión geodésica.
func DistanceKm(a, b Point) float64 {
	latA := radians(a.Lat)
	latB := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

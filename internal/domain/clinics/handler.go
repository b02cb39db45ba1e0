package clinics

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/platform/geo"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/clinics", func(cr chi.Router) {
		cr.Post("/", createClinicHandler(svc))
		cr.Get("/", listClinicsHandler(svc))
		cr.Get("/{clinicID}", getClinicHandler(svc))
		cr.Patch("/{clinicID}/availability", setAvailabilityHandler(svc))
	})
}

type createClinicRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	WhatsApp string `json:"whatsapp"`
	Email    string `json:"email"`

	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	Is24Hour          bool `json:"is_24_hour"`
	IsAvailable       bool `json:"is_available"`
	IsSupportHospital bool `json:"is_support_hospital"`
}

type clinicResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	WhatsApp string `json:"whatsapp,omitempty"`
	Email    string `json:"email,omitempty"`

	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	Is24Hour          bool   `json:"is_24_hour"`
	IsAvailable       bool   `json:"is_available"`
	IsSupportHospital bool   `json:"is_support_hospital"`
	Status            Status `json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func createClinicHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createClinicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		c, err := svc.Create(r.Context(), CreateInput{
			Name:              req.Name,
			Phone:             req.Phone,
			WhatsApp:          req.WhatsApp,
			Email:             req.Email,
			Latitude:          req.Latitude,
			Longitude:         req.Longitude,
			Is24Hour:          req.Is24Hour,
			IsAvailable:       req.IsAvailable,
			IsSupportHospital: req.IsSupportHospital,
		})
		if err != nil {
			if err == ErrInvalidInput {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, toClinicResponse(c))
	}
}

// listClinicsHandler devuelve el directorio rankeado.
// Query params opcionales: lat, lng (ubicación del dueño) y
// last_visit_clinic_id (para priorizar paciente existente).
func listClinicsHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		signals := RankInput{
			LastVisitClinicID: strings.TrimSpace(r.URL.Query().Get("last_visit_clinic_id")),
		}

		latStr := strings.TrimSpace(r.URL.Query().Get("lat"))
		lngStr := strings.TrimSpace(r.URL.Query().Get("lng"))
		if latStr != "" || lngStr != "" {
			lat, errLat := strconv.ParseFloat(latStr, 64)
			lng, errLng := strconv.ParseFloat(lngStr, 64)
			if errLat != nil || errLng != nil {
				http.Error(w, "lat and lng must both be valid floats", http.StatusBadRequest)
				return
			}
			signals.Location = &geo.Point{Lat: lat, Lng: lng}
		}

		items, err := svc.ListCandidates(r.Context(), signals)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]clinicResponse, 0, len(items))
		for _, c := range items {
			out = append(out, toClinicResponse(c))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getClinicHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := svc.GetByID(r.Context(), chi.URLParam(r, "clinicID"))
		if err != nil {
			http.Error(w, "clinic not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, toClinicResponse(c))
	}
}

type setAvailabilityRequest struct {
	IsAvailable bool `json:"is_available"`
}

func setAvailabilityHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		c, err := svc.SetAvailability(r.Context(), chi.URLParam(r, "clinicID"), req.IsAvailable)
		if err != nil {
			if err == ErrNotFound {
				http.Error(w, err.Error(), http.StatusNotFound)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toClinicResponse(c))
	}
}

func toClinicResponse(c Clinic) clinicResponse {
	return clinicResponse{
		ID:                c.ID,
		Name:              c.Name,
		Phone:             c.Phone,
		WhatsApp:          c.WhatsApp,
		Email:             c.Email,
		Latitude:          c.Latitude,
		Longitude:         c.Longitude,
		Is24Hour:          c.Is24Hour,
		IsAvailable:       c.IsAvailable,
		IsSupportHospital: c.IsSupportHospital,
		Status:            c.Status,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

// writeJSON duplicado a propósito por módulo (ver handlers de emergencies y
// broadcast); evitamos un paquete de helpers compartido mientras sean tres usos.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

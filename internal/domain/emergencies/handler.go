package emergencies

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Rutas planas (sin Route/Mount): el módulo broadcast registra sus
// endpoints bajo el mismo prefijo /emergency-requests y un subrouter
// montado acá chocaría con esos patterns.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Post("/emergency-requests", createRequestHandler(svc))
	r.Get("/emergency-requests/{requestID}", getRequestHandler(svc))
}

type petInfoPayload struct {
	Species  string             `json:"species"`
	Breed    string             `json:"breed"`
	AgeYears int                `json:"age_years"`
	Profile  *petProfilePayload `json:"profile,omitempty"`
}

type petProfilePayload struct {
	Name              string `json:"name"`
	MedicalNotes      string `json:"medical_notes"`
	LastVisitClinicID string `json:"last_visit_clinic_id"`
}

type locationPayload struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Text      string   `json:"text"`
}

type createRequestRequest struct {
	SymptomText string `json:"symptom_text"`

	Pet      *petInfoPayload  `json:"pet,omitempty"`
	Location *locationPayload `json:"location,omitempty"`

	ContactName  string `json:"contact_name"`
	ContactPhone string `json:"contact_phone"`
	ContactEmail string `json:"contact_email"`

	VoiceTranscript string `json:"voice_transcript"`
	VoiceAnalysis   string `json:"voice_analysis"`
}

type requestResponse struct {
	ID          string `json:"id"`
	SymptomText string `json:"symptom_text"`

	Pet      *petInfoPayload  `json:"pet,omitempty"`
	Location *locationPayload `json:"location,omitempty"`

	ContactName  string `json:"contact_name"`
	ContactPhone string `json:"contact_phone"`
	ContactEmail string `json:"contact_email"`

	VoiceTranscript string `json:"voice_transcript,omitempty"`
	VoiceAnalysis   string `json:"voice_analysis,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func createRequestHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		created, err := svc.Create(r.Context(), CreateInput{
			SymptomText:     req.SymptomText,
			Pet:             toPetInfo(req.Pet),
			Location:        toLocation(req.Location),
			ContactName:     req.ContactName,
			ContactPhone:    req.ContactPhone,
			ContactEmail:    req.ContactEmail,
			VoiceTranscript: req.VoiceTranscript,
			VoiceAnalysis:   req.VoiceAnalysis,
		})
		if err != nil {
			if err == ErrInvalidInput {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusCreated, toRequestResponse(created))
	}
}

func getRequestHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := svc.GetByID(r.Context(), chi.URLParam(r, "requestID"))
		if err != nil {
			http.Error(w, "emergency request not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, toRequestResponse(req))
	}
}

func toPetInfo(p *petInfoPayload) *PetInfo {
	if p == nil {
		return nil
	}
	info := &PetInfo{
		Species:  p.Species,
		Breed:    p.Breed,
		AgeYears: p.AgeYears,
	}
	if p.Profile != nil {
		info.Profile = &PetProfile{
			Name:              p.Profile.Name,
			MedicalNotes:      p.Profile.MedicalNotes,
			LastVisitClinicID: p.Profile.LastVisitClinicID,
		}
	}
	return info
}

func toLocation(l *locationPayload) *Location {
	if l == nil {
		return nil
	}
	return &Location{
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
		Text:      l.Text,
	}
}

func toRequestResponse(r EmergencyRequest) requestResponse {
	out := requestResponse{
		ID:              r.ID,
		SymptomText:     r.SymptomText,
		ContactName:     r.ContactName,
		ContactPhone:    r.ContactPhone,
		ContactEmail:    r.ContactEmail,
		VoiceTranscript: r.VoiceTranscript,
		VoiceAnalysis:   r.VoiceAnalysis,
		CreatedAt:       r.CreatedAt,
	}
	if r.Pet != nil {
		out.Pet = &petInfoPayload{
			Species:  r.Pet.Species,
			Breed:    r.Pet.Breed,
			AgeYears: r.Pet.AgeYears,
		}
		if r.Pet.Profile != nil {
			out.Pet.Profile = &petProfilePayload{
				Name:              r.Pet.Profile.Name,
				MedicalNotes:      r.Pet.Profile.MedicalNotes,
				LastVisitClinicID: r.Pet.Profile.LastVisitClinicID,
			}
		}
	}
	if r.Location != nil {
		out.Location = &locationPayload{
			Latitude:  r.Location.Latitude,
			Longitude: r.Location.Longitude,
			Text:      r.Location.Text,
		}
	}
	return out
}

// writeJSON duplicado a propósito por módulo (ver clinics/broadcast).
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

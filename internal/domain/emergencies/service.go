package emergencies

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("emergency request not found")
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
	}
}

type CreateInput struct {
	SymptomText string

	Pet      *PetInfo
	Location *Location

	ContactName  string
	ContactPhone string
	ContactEmail string

	VoiceTranscript string
	VoiceAnalysis   string
}

// Create registra una emergencia. Exige síntoma (o transcript de voz)
// y al menos un medio de contacto del dueño.
func (s *Service) Create(ctx context.Context, in CreateInput) (EmergencyRequest, error) {
	if strings.TrimSpace(in.SymptomText) == "" && strings.TrimSpace(in.VoiceTranscript) == "" {
		return EmergencyRequest{}, ErrInvalidInput
	}
	if strings.TrimSpace(in.ContactPhone) == "" && strings.TrimSpace(in.ContactEmail) == "" {
		return EmergencyRequest{}, ErrInvalidInput
	}
	if in.Location != nil {
		if (in.Location.Latitude == nil) != (in.Location.Longitude == nil) {
			return EmergencyRequest{}, ErrInvalidInput
		}
	}

	r := EmergencyRequest{
		ID:              uuid.NewString(),
		SymptomText:     strings.TrimSpace(in.SymptomText),
		Pet:             in.Pet,
		Location:        in.Location,
		ContactName:     strings.TrimSpace(in.ContactName),
		ContactPhone:    strings.TrimSpace(in.ContactPhone),
		ContactEmail:    strings.TrimSpace(in.ContactEmail),
		VoiceTranscript: strings.TrimSpace(in.VoiceTranscript),
		VoiceAnalysis:   strings.TrimSpace(in.VoiceAnalysis),
		CreatedAt:       s.now(),
	}

	if err := s.repo.Create(ctx, r); err != nil {
		return EmergencyRequest{}, err
	}
	return r, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (EmergencyRequest, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return EmergencyRequest{}, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

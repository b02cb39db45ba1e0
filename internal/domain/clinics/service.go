package clinics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("clinic not found")
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
	Name     string
	Phone    string
	WhatsApp string
	Email    string

	Latitude  *float64
	Longitude *float64

	Is24Hour          bool
	IsAvailable       bool
	IsSupportHospital bool
}

// Create da de alta una clínica en el directorio. Alta mínima para
// seeding/ops; el editor completo de admin vive en otro subsistema.
func (s *Service) Create(ctx context.Context, in CreateInput) (Clinic, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Clinic{}, ErrInvalidInput
	}
	// Una clínica sin teléfono ni canal digital no sirve en una emergencia.
	if strings.TrimSpace(in.Phone) == "" &&
		strings.TrimSpace(in.WhatsApp) == "" &&
		strings.TrimSpace(in.Email) == "" {
		return Clinic{}, ErrInvalidInput
	}
	if (in.Latitude == nil) != (in.Longitude == nil) {
		return Clinic{}, ErrInvalidInput
	}

	now := s.now()
	c := Clinic{
		ID:                uuid.NewString(),
		Name:              strings.TrimSpace(in.Name),
		Phone:             strings.TrimSpace(in.Phone),
		WhatsApp:          strings.TrimSpace(in.WhatsApp),
		Email:             strings.TrimSpace(in.Email),
		Latitude:          in.Latitude,
		Longitude:         in.Longitude,
		Is24Hour:          in.Is24Hour,
		IsAvailable:       in.IsAvailable,
		IsSupportHospital: in.IsSupportHospital,
		Status:            StatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return Clinic{}, err
	}
	return c, nil
}

// SetAvailability prende/apaga la disponibilidad de guardia de una clínica.
// Afecta solo al quick broadcast; un broadcast dirigido la alcanza igual.
func (s *Service) SetAvailability(ctx context.Context, id string, available bool) (Clinic, error) {
	c, err := s.GetByID(ctx, id)
	if err != nil {
		return Clinic{}, err
	}

	c.IsAvailable = available
	c.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, c); err != nil {
		return Clinic{}, err
	}
	return c, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (Clinic, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Clinic{}, ErrInvalidInput
	}
	return s.repo.GetByID(ctx, id)
}

// ListCandidates devuelve el directorio completo ya rankeado según las
// señales dadas. Es la lista que consume la UI y el quick broadcast;
// el orden acá es el autoritativo (la copia del cliente es presentación).
func (s *Service) ListCandidates(ctx context.Context, signals RankInput) ([]Clinic, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return Rank(all, signals), nil
}

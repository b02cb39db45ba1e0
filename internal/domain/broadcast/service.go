package broadcast

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/clinics"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/emergencies"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/platform/geo"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/platform/logger"
)

var (
	ErrRequestNotFound = errors.New("emergency request not found")
	ErrEmptyMessage    = errors.New("composed message is empty")
)

// Razones de exclusión para selecciones explícitas. Una clínica excluida
// se reporta siempre; jamás se le "envía en silencio" ni se omite callada.
const (
	ReasonNotFound         = "not_found"
	ReasonInactive         = "inactive"
	ReasonNoContactChannel = "no_contact_channel"
)

type Exclusion struct {
	ClinicID string
	Reason   string
}

// Result es el agregado que vuelve sincrónicamente al caller. No se
// persiste: se deriva por completo de los rows creados en la llamada.
type Result struct {
	Count    int
	Messages []Message
	Excluded []Exclusion
}

// Service es el orquestador: carga el request, selecciona candidatas,
// compone una sola vez y delega el fan-out al Dispatcher.
type Service struct {
	requests   emergencies.Repository
	directory  clinics.Repository
	messages   MessageRepository
	dispatcher *Dispatcher

	// MaxQuickRecipients acota el quick broadcast; el ranking decide
	// quién entra al corte. 0 = sin límite.
	maxQuickRecipients int

	log logger.Logger
	now func() time.Time
}

type ServiceOptions struct {
	MaxQuickRecipients int
	Log                logger.Logger
}

func NewService(
	requests emergencies.Repository,
	directory clinics.Repository,
	messages MessageRepository,
	dispatcher *Dispatcher,
	opts ServiceOptions,
) *Service {
	log := opts.Log
	if log == nil {
		log = logger.New(logger.Options{Level: logger.Error})
	}
	return &Service{
		requests:           requests,
		directory:          directory,
		messages:           messages,
		dispatcher:         dispatcher,
		maxQuickRecipients: opts.MaxQuickRecipients,
		log:                log,
		now:                time.Now,
	}
}

// QuickBroadcast: toda la red de partners 24h elegibles, ordenada por el
// ranking. No recibe lista de destinatarios.
func (s *Service) QuickBroadcast(ctx context.Context, requestID string) (Result, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return Result{}, err
	}

	all, err := s.directory.List(ctx)
	if err != nil {
		return Result{}, err
	}

	eligible := make([]clinics.Clinic, 0, len(all))
	for _, c := range all {
		if clinics.QuickBroadcastEligible(c) {
			eligible = append(eligible, c)
		}
	}

	ranked := clinics.Rank(eligible, rankSignals(req))
	if s.maxQuickRecipients > 0 && len(ranked) > s.maxQuickRecipients {
		ranked = ranked[:s.maxQuickRecipients]
	}

	return s.broadcast(ctx, req, ranked, nil, "")
}

// TargetedBroadcast: subset explícito del caller. La selección explícita
// saltea el ranking pero no la elegibilidad; las excluidas vuelven con
// razón. Lista vacía = no-op con count 0 (no es un quick implícito).
// contentOverride reemplaza al composer si viene no-vacío (el coordinador
// puede editar el texto antes de mandar).
func (s *Service) TargetedBroadcast(ctx context.Context, requestID string, clinicIDs []string, contentOverride string) (Result, error) {
	req, err := s.loadRequest(ctx, requestID)
	if err != nil {
		return Result{}, err
	}

	ids := dedupe(clinicIDs)
	if len(ids) == 0 {
		return Result{Count: 0, Messages: []Message{}, Excluded: []Exclusion{}}, nil
	}

	found, err := s.directory.ListByIDs(ctx, ids)
	if err != nil {
		return Result{}, err
	}
	byID := make(map[string]clinics.Clinic, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}

	// Preserva el orden del caller; acá no hay ranking.
	selected := make([]clinics.Clinic, 0, len(ids))
	excluded := make([]Exclusion, 0)
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			excluded = append(excluded, Exclusion{ClinicID: id, Reason: ReasonNotFound})
			continue
		}
		if c.Status != clinics.StatusActive {
			excluded = append(excluded, Exclusion{ClinicID: id, Reason: ReasonInactive})
			continue
		}
		if !clinics.BroadcastEligible(c) {
			excluded = append(excluded, Exclusion{ClinicID: id, Reason: ReasonNoContactChannel})
			continue
		}
		selected = append(selected, c)
	}

	return s.broadcast(ctx, req, selected, excluded, contentOverride)
}

// Messages expone los rows de un request para la status page.
func (s *Service) Messages(ctx context.Context, requestID string) ([]Message, error) {
	if _, err := s.loadRequest(ctx, requestID); err != nil {
		return nil, err
	}
	return s.messages.ListByRequest(ctx, requestID)
}

// ConfirmDelivery procesa la confirmación del proveedor (webhook) y mueve
// el row sent -> delivered. Idempotente: confirmaciones repetidas o tardías
// (row ya failed) se ignoran.
func (s *Service) ConfirmDelivery(ctx context.Context, providerMessageID string) error {
	providerMessageID = strings.TrimSpace(providerMessageID)
	if providerMessageID == "" {
		return errors.New("provider message id required")
	}

	m, err := s.messages.GetByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		return err
	}

	now := s.now()
	won, err := s.messages.CompareAndSetStatus(ctx, m.ID, StatusSent, StatusDelivered, StatusPatch{
		DeliveredAt: &now,
	})
	if err != nil {
		return err
	}
	if !won {
		s.log.Debug("delivery confirmation ignored", map[string]any{
			"message_id": m.ID,
			"status":     string(m.Status),
		})
	}
	return nil
}

func (s *Service) broadcast(ctx context.Context, req emergencies.EmergencyRequest, candidates []clinics.Clinic, excluded []Exclusion, contentOverride string) (Result, error) {
	content := strings.TrimSpace(contentOverride)
	if content == "" {
		content = Render(ComposeSections(req))
	}
	if content == "" {
		return Result{}, ErrEmptyMessage
	}

	if excluded == nil {
		excluded = []Exclusion{}
	}

	created, err := s.dispatcher.Dispatch(ctx, req.ID, content, candidates, DispatchOptions{
		WaitFirstAttempt: true,
	})
	if err != nil {
		return Result{}, err
	}

	s.log.Info("broadcast dispatched", map[string]any{
		"request_id": req.ID,
		"count":      len(created),
		"excluded":   len(excluded),
	})

	return Result{
		Count:    len(created),
		Messages: s.refresh(ctx, created),
		Excluded: excluded,
	}, nil
}

// refresh relee los rows creados para devolver el resultado del primer
// intento (Dispatch esperó con WaitFirstAttempt).
func (s *Service) refresh(ctx context.Context, created []Message) []Message {
	out := make([]Message, 0, len(created))
	for _, m := range created {
		fresh, err := s.messages.GetByID(ctx, m.ID)
		if err != nil {
			out = append(out, m)
			continue
		}
		out = append(out, fresh)
	}
	return out
}

func (s *Service) loadRequest(ctx context.Context, requestID string) (emergencies.EmergencyRequest, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return emergencies.EmergencyRequest{}, ErrRequestNotFound
	}
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, emergencies.ErrNotFound) {
			return emergencies.EmergencyRequest{}, ErrRequestNotFound
		}
		return emergencies.EmergencyRequest{}, err
	}
	return req, nil
}

func rankSignals(req emergencies.EmergencyRequest) clinics.RankInput {
	signals := clinics.RankInput{
		LastVisitClinicID: req.LastVisitClinicID(),
	}
	if req.Location.HasCoordinates() {
		signals.Location = &geo.Point{
			Lat: *req.Location.Latitude,
			Lng: *req.Location.Longitude,
		}
	}
	return signals
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

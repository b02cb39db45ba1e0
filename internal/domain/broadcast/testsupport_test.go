package broadcast

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/clinics"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/emergencies"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/ports/channels"
)

// -------------------------
// Test repos (in-memory)
// -------------------------

var errRepoNotFound = errors.New("repo: not found")

type testMessagesRepo struct {
	mu   sync.Mutex
	byID map[string]Message
	seq  []string // orden de inserción
}

func newTestMessagesRepo() *testMessagesRepo {
	return &testMessagesRepo{byID: map[string]Message{}}
}

func (r *testMessagesRepo) Create(ctx context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == "" {
		return errors.New("repo: id required")
	}
	if _, ok := r.byID[m.ID]; ok {
		return errors.New("repo: already exists")
	}
	r.byID[m.ID] = m
	r.seq = append(r.seq, m.ID)
	return nil
}

func (r *testMessagesRepo) GetByID(ctx context.Context, id string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return Message{}, errRepoNotFound
	}
	return m, nil
}

func (r *testMessagesRepo) ListByRequest(ctx context.Context, requestID string) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, 0)
	for _, id := range r.seq {
		if m := r.byID[id]; m.EmergencyRequestID == requestID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *testMessagesRepo) ListSweepable(ctx context.Context, staleBefore time.Time, maxRetries int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, 0)
	for _, id := range r.seq {
		m := r.byID[id]
		switch m.Status {
		case StatusFailed:
			if m.Retryable && m.RetryCount < maxRetries {
				out = append(out, m)
			}
		case StatusQueued:
			if m.UpdatedAt.Before(staleBefore) {
				out = append(out, m)
			}
		}
	}
	return out, nil
}

func (r *testMessagesRepo) GetByProviderMessageID(ctx context.Context, providerID string) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.seq {
		if m := r.byID[id]; m.ProviderMessageID == providerID {
			return m, nil
		}
	}
	return Message{}, errRepoNotFound
}

func (r *testMessagesRepo) CompareAndSetStatus(ctx context.Context, id string, from, to Status, patch StatusPatch) (bool, error) {
	if !CanTransition(from, to) {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return false, errRepoNotFound
	}
	if m.Status != from {
		return false, nil
	}

	m.Status = to
	m.UpdatedAt = time.Now()
	if patch.RetryCount != nil {
		m.RetryCount = *patch.RetryCount
	}
	if patch.Retryable != nil {
		m.Retryable = *patch.Retryable
	}
	if patch.ProviderMessageID != nil {
		m.ProviderMessageID = *patch.ProviderMessageID
	}
	if patch.ErrorMessage != nil {
		m.ErrorMessage = *patch.ErrorMessage
	}
	if patch.SentAt != nil {
		m.SentAt = patch.SentAt
	}
	if patch.DeliveredAt != nil {
		m.DeliveredAt = patch.DeliveredAt
	}
	if patch.FailedAt != nil {
		m.FailedAt = patch.FailedAt
	}

	r.byID[id] = m
	return true, nil
}

// inOrder devuelve los rows en orden de creación.
func (r *testMessagesRepo) inOrder() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, 0, len(r.seq))
	for _, id := range r.seq {
		out = append(out, r.byID[id])
	}
	return out
}

type testClinicsRepo struct {
	mu   sync.Mutex
	byID map[string]clinics.Clinic
}

func newTestClinicsRepo(cs ...clinics.Clinic) *testClinicsRepo {
	r := &testClinicsRepo{byID: map[string]clinics.Clinic{}}
	for _, c := range cs {
		r.byID[c.ID] = c
	}
	return r
}

func (r *testClinicsRepo) Create(ctx context.Context, c clinics.Clinic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[c.ID] = c
	return nil
}

func (r *testClinicsRepo) Update(ctx context.Context, c clinics.Clinic) error {
	return r.Create(ctx, c)
}

func (r *testClinicsRepo) GetByID(ctx context.Context, id string) (clinics.Clinic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return clinics.Clinic{}, clinics.ErrNotFound
	}
	return c, nil
}

func (r *testClinicsRepo) List(ctx context.Context) ([]clinics.Clinic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]clinics.Clinic, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *testClinicsRepo) ListByIDs(ctx context.Context, ids []string) ([]clinics.Clinic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]clinics.Clinic, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type testRequestsRepo struct {
	byID map[string]emergencies.EmergencyRequest
}

func newTestRequestsRepo(rs ...emergencies.EmergencyRequest) *testRequestsRepo {
	r := &testRequestsRepo{byID: map[string]emergencies.EmergencyRequest{}}
	for _, er := range rs {
		r.byID[er.ID] = er
	}
	return r
}

func (r *testRequestsRepo) Create(ctx context.Context, er emergencies.EmergencyRequest) error {
	r.byID[er.ID] = er
	return nil
}

func (r *testRequestsRepo) GetByID(ctx context.Context, id string) (emergencies.EmergencyRequest, error) {
	er, ok := r.byID[id]
	if !ok {
		return emergencies.EmergencyRequest{}, emergencies.ErrNotFound
	}
	return er, nil
}

// -------------------------
// Fake senders
// -------------------------

type senderFunc func(ctx context.Context, address, content string) (channels.Receipt, error)

func (f senderFunc) Send(ctx context.Context, address, content string) (channels.Receipt, error) {
	return f(ctx, address, content)
}

func okSender() channels.Sender {
	return senderFunc(func(ctx context.Context, address, content string) (channels.Receipt, error) {
		return channels.Receipt{}, nil
	})
}

// failNTimesSender falla transitoriamente las primeras n llamadas por
// dirección y después responde ok.
type failNTimesSender struct {
	mu    sync.Mutex
	n     int
	calls map[string]int
}

func newFailNTimesSender(n int) *failNTimesSender {
	return &failNTimesSender{n: n, calls: map[string]int{}}
}

func (f *failNTimesSender) Send(ctx context.Context, address, content string) (channels.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[address]++
	if f.calls[address] <= f.n {
		return channels.Receipt{}, channels.Transient(errors.New("provider 503"))
	}
	return channels.Receipt{}, nil
}

// -------------------------
// Fixtures
// -------------------------

func float64ptr(v float64) *float64 { return &v }

func fixtureRequest(id string) emergencies.EmergencyRequest {
	return emergencies.EmergencyRequest{
		ID:          id,
		SymptomText: "dog collapsed after eating chocolate",
		Location: &emergencies.Location{
			Latitude:  float64ptr(22.30),
			Longitude: float64ptr(114.17),
		},
		ContactName:  "Chan Tai Man",
		ContactPhone: "+85291234567",
		CreatedAt:    time.Now(),
	}
}

// clinicA: partner 24h cerca del request, con whatsapp.
func clinicA() clinics.Clinic {
	return clinics.Clinic{
		ID:                "clinic-a",
		Name:              "Harbour 24h Animal Hospital",
		Phone:             "+85221111111",
		WhatsApp:          "+85261111111",
		Latitude:          float64ptr(22.31),
		Longitude:         float64ptr(114.18),
		Is24Hour:          true,
		IsAvailable:       true,
		IsSupportHospital: true,
		Status:            clinics.StatusActive,
		CreatedAt:         time.Now(),
	}
}

// clinicB: solo email, no es 24h ni partner, más lejos.
func clinicB() clinics.Clinic {
	return clinics.Clinic{
		ID:          "clinic-b",
		Name:        "Kowloon East Vet Clinic",
		Phone:       "+85222222222",
		Email:       "frontdesk@kevet.example.com",
		Latitude:    float64ptr(22.40),
		Longitude:   float64ptr(114.30),
		Is24Hour:    false,
		IsAvailable: true,
		Status:      clinics.StatusActive,
		CreatedAt:   time.Now(),
	}
}

func newTestDispatcher(repo MessageRepository, senders map[clinics.Channel]channels.Sender, maxInflight int) *Dispatcher {
	return NewDispatcher(repo, senders, DispatcherOptions{MaxInflight: maxInflight})
}

package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/broadcast"
)

var ErrNotFound = errors.New("not found")

type messagesRepo struct {
	mu   sync.RWMutex
	byID map[string]broadcast.Message
	now  func() time.Time
}

func NewMessagesRepo() broadcast.MessageRepository {
	return &messagesRepo{
		byID: make(map[string]broadcast.Message),
		now:  time.Now,
	}
}

func (r *messagesRepo) Create(ctx context.Context, m broadcast.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(m.ID) == "" {
		return errors.New("message id required")
	}
	if _, exists := r.byID[m.ID]; exists {
		return errors.New("message already exists")
	}
	r.byID[m.ID] = m
	return nil
}

func (r *messagesRepo) GetByID(ctx context.Context, id string) (broadcast.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return broadcast.Message{}, ErrNotFound
	}
	return m, nil
}

func (r *messagesRepo) ListByRequest(ctx context.Context, requestID string) ([]broadcast.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]broadcast.Message, 0)
	for _, m := range r.byID {
		if m.EmergencyRequestID == requestID {
			out = append(out, m)
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

func (r *messagesRepo) ListSweepable(ctx context.Context, staleBefore time.Time, maxRetries int) ([]broadcast.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]broadcast.Message, 0)
	for _, m := range r.byID {
		switch m.Status {
		case broadcast.StatusFailed:
			if m.Retryable && m.RetryCount < maxRetries {
				out = append(out, m)
			}
		case broadcast.StatusQueued:
			if m.UpdatedAt.Before(staleBefore) {
				out = append(out, m)
			}
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

func (r *messagesRepo) GetByProviderMessageID(ctx context.Context, providerID string) (broadcast.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var winner broadcast.Message
	has := false
	for _, m := range r.byID {
		if m.ProviderMessageID != providerID {
			continue
		}
		if !has || m.CreatedAt.After(winner.CreatedAt) {
			winner = m
			has = true
		}
	}
	if !has {
		return broadcast.Message{}, ErrNotFound
	}
	return winner, nil
}

// CompareAndSetStatus: mismo contrato que el repo de Postgres; el lock
// hace de guard en lugar del WHERE.
func (r *messagesRepo) CompareAndSetStatus(ctx context.Context, id string, from, to broadcast.Status, patch broadcast.StatusPatch) (bool, error) {
	if !broadcast.CanTransition(from, to) {
		return false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return false, ErrNotFound
	}
	if m.Status != from {
		return false, nil
	}

	m.Status = to
	m.UpdatedAt = r.now()
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

func sortByCreatedAt(ms []broadcast.Message) {
	sort.SliceStable(ms, func(i, j int) bool {
		return ms[i].CreatedAt.Before(ms[j].CreatedAt)
	})
}

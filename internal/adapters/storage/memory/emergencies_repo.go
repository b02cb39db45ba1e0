package memory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/emergencies"
)

type emergenciesRepo struct {
	mu   sync.RWMutex
	byID map[string]emergencies.EmergencyRequest
}

func NewEmergenciesRepo() emergencies.Repository {
	return &emergenciesRepo{
		byID: make(map[string]emergencies.EmergencyRequest),
	}
}

func (r *emergenciesRepo) Create(ctx context.Context, er emergencies.EmergencyRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(er.ID) == "" {
		return errors.New("request id required")
	}
	if _, exists := r.byID[er.ID]; exists {
		return errors.New("request already exists")
	}
	r.byID[er.ID] = er
	return nil
}

func (r *emergenciesRepo) GetByID(ctx context.Context, id string) (emergencies.EmergencyRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	er, ok := r.byID[id]
	if !ok {
		return emergencies.EmergencyRequest{}, emergencies.ErrNotFound
	}
	return er, nil
}

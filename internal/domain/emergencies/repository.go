package emergencies

import "context"

type Repository interface {
	Create(ctx context.Context, r EmergencyRequest) error
	GetByID(ctx context.Context, id string) (EmergencyRequest, error)
}

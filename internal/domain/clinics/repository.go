package clinics

import "context"

type Repository interface {
	Create(ctx context.Context, c Clinic) error
	Update(ctx context.Context, c Clinic) error
	GetByID(ctx context.Context, id string) (Clinic, error)
	List(ctx context.Context) ([]Clinic, error)
	ListByIDs(ctx context.Context, ids []string) ([]Clinic, error)
}

package broadcast

import (
	"context"
	"time"
)

// StatusPatch son los campos que acompañan una transición de estado.
// nil = no tocar.
type StatusPatch struct {
	RetryCount        *int
	Retryable         *bool
	ProviderMessageID *string
	ErrorMessage      *string

	SentAt      *time.Time
	DeliveredAt *time.Time
	FailedAt    *time.Time
}

// MessageRepository persiste los rows de entrega.
//
// CompareAndSetStatus es la única vía de actualización: cambia el row solo
// si su status actual es `from` y devuelve si ganó el CAS. Con eso ninguna
// pareja dispatcher/sweeper puede pisar al otro sobre el mismo row.
type MessageRepository interface {
	Create(ctx context.Context, m Message) error
	GetByID(ctx context.Context, id string) (Message, error)
	ListByRequest(ctx context.Context, requestID string) ([]Message, error)

	// ListSweepable devuelve candidatos para el sweep de retry:
	// rows failed reintentables con retry_count < maxRetries, y rows
	// todavía queued cuyo updated_at quedó antes de staleBefore
	// (víctimas de un deadline del dispatch).
	ListSweepable(ctx context.Context, staleBefore time.Time, maxRetries int) ([]Message, error)

	// GetByProviderMessageID resuelve el row de un webhook de delivery.
	GetByProviderMessageID(ctx context.Context, providerID string) (Message, error)

	CompareAndSetStatus(ctx context.Context, id string, from, to Status, patch StatusPatch) (bool, error)
}

package channels

import "context"

// Receipt es lo que devuelve un canal tras aceptar un envío.
// ProviderMessageID puede venir vacío si el proveedor no entrega id.
type Receipt struct {
	ProviderMessageID string
}

// Sender envía un contenido ya renderizado a una dirección del canal
// (número de WhatsApp o email, según el adapter).
type Sender interface {
	Send(ctx context.Context, address, content string) (Receipt, error)
}

package broadcast

import (
	"time"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/clinics"
)

// Status es el estado de entrega de un Message.
// Máquina: queued -> sent -> delivered (camino feliz),
// queued -> failed / sent -> failed (falla reportada por el canal).
// @Enum queued, sent, delivered, failed
type Status string

const (
	StatusQueued    Status = "queued"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// validTransitions define la máquina de estados. El status nunca regresa;
// el único "retroceso" permitido es failed -> queued vía el sweep de retry,
// que es un reenvío explícito del mismo row (retryCount++), no una regresión
// del resultado observado.
var validTransitions = map[Status][]Status{
	StatusQueued: {StatusSent, StatusFailed},
	StatusSent:   {StatusDelivered, StatusFailed},
	StatusFailed: {StatusQueued},
}

// CanTransition reporta si from -> to es un paso válido de la máquina.
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Message es un intento de entrega a una (clínica, canal) dentro de un
// broadcast. Re-invocar broadcast para la misma clínica crea rows nuevos;
// un row existente jamás se reusa para un re-broadcast.
// Los rows no se borran nunca (auditoría + status page).
type Message struct {
	ID                 string
	EmergencyRequestID string
	ClinicID           string

	Channel   clinics.Channel
	Recipient string // número de whatsapp o email según canal
	Content   string

	Status     Status
	RetryCount int
	// Retryable=false marca una falla permanente (dirección inválida,
	// rechazo 4xx); el sweep no la toca.
	Retryable bool

	// ProviderMessageID llega solo de canales que devuelven id (whatsapp);
	// es la clave para correlacionar el webhook de delivery.
	ProviderMessageID string
	ErrorMessage      string

	SentAt      *time.Time
	DeliveredAt *time.Time
	FailedAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

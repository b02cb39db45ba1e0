package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/clinics"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/platform/logger"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/ports/channels"

	"github.com/google/uuid"
)

const (
	DefaultMaxInflight = 8
	DefaultSendTimeout = 15 * time.Second
)

// Dispatcher hace el fan-out de un contenido ya compuesto a cada par
// (clínica, canal). Crea los rows en estado queued siguiendo el orden del
// ranking y dispara los envíos en paralelo, acotados por un semáforo para
// no saturar a los proveedores.
type Dispatcher struct {
	messages MessageRepository
	senders  map[clinics.Channel]channels.Sender

	maxInflight int
	sendTimeout time.Duration

	log logger.Logger

	// inyectables para tests
	now   func() time.Time
	newID func() string
}

type DispatcherOptions struct {
	MaxInflight int
	SendTimeout time.Duration
	Log         logger.Logger
}

func NewDispatcher(messages MessageRepository, senders map[clinics.Channel]channels.Sender, opts DispatcherOptions) *Dispatcher {
	maxInflight := opts.MaxInflight
	if maxInflight <= 0 {
		maxInflight = DefaultMaxInflight
	}
	sendTimeout := opts.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	log := opts.Log
	if log == nil {
		log = logger.New(logger.Options{Level: logger.Error})
	}

	return &Dispatcher{
		messages:    messages,
		senders:     senders,
		maxInflight: maxInflight,
		sendTimeout: sendTimeout,
		log:         log,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

type DispatchOptions struct {
	// WaitFirstAttempt hace que Dispatch espere a que termine el primer
	// intento de cada envío antes de retornar. Sin esto, Dispatch retorna
	// apenas todos los rows llegaron a queued y los envíos siguen en
	// background (desacoplados de la cancelación del caller).
	WaitFirstAttempt bool
}

// Dispatch crea un Message por cada canal contactable de cada candidata
// (orden de creación = orden del ranking recibido) y dispara los envíos.
// Una candidata sin canales no genera rows. La falla de un destinatario
// nunca aborta a los demás.
func (d *Dispatcher) Dispatch(ctx context.Context, requestID, content string, candidates []clinics.Clinic, opts DispatchOptions) ([]Message, error) {
	created := make([]Message, 0, len(candidates)*2)

	for _, c := range candidates {
		for _, cp := range clinics.ContactPoints(c) {
			now := d.now()
			m := Message{
				ID:                 d.newID(),
				EmergencyRequestID: requestID,
				ClinicID:           c.ID,
				Channel:            cp.Channel,
				Recipient:          cp.Address,
				Content:            content,
				Status:             StatusQueued,
				Retryable:          true,
				CreatedAt:          now,
				UpdatedAt:          now,
			}
			if err := d.messages.Create(ctx, m); err != nil {
				return created, fmt.Errorf("create message row: %w", err)
			}
			created = append(created, m)
		}
	}

	// En modo async los envíos no heredan la cancelación del caller:
	// el request HTTP termina pero los sends siguen.
	sendCtx := ctx
	if !opts.WaitFirstAttempt {
		sendCtx = context.WithoutCancel(ctx)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, d.maxInflight)

	for _, m := range created {
		wg.Add(1)
		go func(m Message) {
			defer wg.Done()

			// La espera por el semáforo también está acotada por
			// sendTimeout: un task vive a lo sumo 2×sendTimeout
			// (espera + intento). Pasado eso suelta el row sin
			// tocarlo, y un row queued más viejo que esa ventana no
			// tiene dueño vivo: el sweep puede tomarlo sin que el
			// destinatario reciba la alerta dos veces.
			waitCtx, cancelWait := context.WithTimeout(sendCtx, d.sendTimeout)
			select {
			case sem <- struct{}{}:
				cancelWait()
			case <-waitCtx.Done():
				cancelWait()
				// El row queda queued y lo levanta el sweep.
				return
			}
			defer func() { <-sem }()

			attemptCtx, cancel := context.WithTimeout(sendCtx, d.sendTimeout)
			defer cancel()
			d.attempt(attemptCtx, m)
		}(m)
	}

	if opts.WaitFirstAttempt {
		wg.Wait()
	}

	return created, nil
}

// attempt ejecuta un intento de envío para un row en estado queued y
// registra el resultado vía CAS. Lo usan los tasks del fan-out y el sweep
// (después de re-encolar el row). Perder el CAS significa que otro dueño
// ya movió el row; en ese caso no se toca nada.
func (d *Dispatcher) attempt(ctx context.Context, m Message) {
	if ctx.Err() != nil {
		return // queda queued para el sweep
	}

	sender, ok := d.senders[m.Channel]
	if !ok {
		d.markFailed(ctx, m, fmt.Errorf("no sender configured for channel %s", m.Channel), false)
		return
	}

	receipt, err := sender.Send(ctx, m.Recipient, m.Content)
	if err != nil {
		retryable := !channels.IsPermanent(err)
		d.markFailed(ctx, m, err, retryable)
		return
	}

	now := d.now()
	patch := StatusPatch{SentAt: &now}
	if receipt.ProviderMessageID != "" {
		pid := receipt.ProviderMessageID
		patch.ProviderMessageID = &pid
	}

	won, casErr := d.messages.CompareAndSetStatus(ctx, m.ID, StatusQueued, StatusSent, patch)
	if casErr != nil {
		d.log.Error("mark sent failed", map[string]any{"message_id": m.ID, "error": casErr.Error()})
		return
	}
	if !won {
		d.log.Warn("lost status cas on sent", map[string]any{"message_id": m.ID})
		return
	}

	d.log.Info("message sent", map[string]any{
		"message_id": m.ID,
		"request_id": m.EmergencyRequestID,
		"clinic_id":  m.ClinicID,
		"channel":    string(m.Channel),
		"retry":      m.RetryCount,
	})
}

func (d *Dispatcher) markFailed(ctx context.Context, m Message, sendErr error, retryable bool) {
	now := d.now()
	errMsg := sendErr.Error()

	won, err := d.messages.CompareAndSetStatus(ctx, m.ID, StatusQueued, StatusFailed, StatusPatch{
		FailedAt:     &now,
		ErrorMessage: &errMsg,
		Retryable:    &retryable,
	})
	if err != nil {
		d.log.Error("mark failed failed", map[string]any{"message_id": m.ID, "error": err.Error()})
		return
	}
	if !won {
		d.log.Warn("lost status cas on failed", map[string]any{"message_id": m.ID})
		return
	}

	d.log.Warn("message send failed", map[string]any{
		"message_id": m.ID,
		"clinic_id":  m.ClinicID,
		"channel":    string(m.Channel),
		"retryable":  retryable,
		"error":      errMsg,
	})
}

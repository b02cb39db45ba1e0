package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/platform/logger"
)

const (
	DefaultSweepInterval = 30 * time.Second
	DefaultBackoffBase   = 30 * time.Second
	DefaultMaxRetries    = 3
	DefaultStaleAfter    = 2 * time.Minute
)

// Sweeper es el barrido de retries en background: reenvía rows failed
// reintentables (con backoff exponencial) y rescata rows que quedaron
// queued porque el dispatch murió por deadline antes de intentarlos.
//
// La propiedad del row pasa al sweep vía CAS failed->queued con
// retryCount+1; un row que agotó los retries queda failed permanente
// y se resuelve a mano desde la status page.
type Sweeper struct {
	messages   MessageRepository
	dispatcher *Dispatcher

	interval    time.Duration
	backoffBase time.Duration
	maxRetries  int
	staleAfter  time.Duration

	log logger.Logger
	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type SweeperOptions struct {
	Interval    time.Duration
	BackoffBase time.Duration
	MaxRetries  int
	StaleAfter  time.Duration
	Log         logger.Logger
}

func NewSweeper(messages MessageRepository, dispatcher *Dispatcher, opts SweeperOptions) *Sweeper {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	backoffBase := opts.BackoffBase
	if backoffBase <= 0 {
		backoffBase = DefaultBackoffBase
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	staleAfter := opts.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	// Un task del dispatch vive a lo sumo 2×sendTimeout (espera de
	// semáforo + intento). Con staleAfter por debajo de esa ventana el
	// sweep podría rescatar un row cuyo task sigue vivo.
	if dispatcher != nil {
		if floor := 2 * dispatcher.sendTimeout; staleAfter < floor {
			staleAfter = floor
		}
	}
	log := opts.Log
	if log == nil {
		log = logger.New(logger.Options{Level: logger.Error})
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		messages:    messages,
		dispatcher:  dispatcher,
		interval:    interval,
		backoffBase: backoffBase,
		maxRetries:  maxRetries,
		staleAfter:  staleAfter,
		log:         log,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop corta el loop y espera a que termine el sweep en curso.
func (s *Sweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepOnce(s.ctx)
			if err != nil {
				s.log.Error("sweep failed", map[string]any{"error": err.Error()})
				continue
			}
			if n > 0 {
				s.log.Info("sweep resent messages", map[string]any{"count": n})
			}
		}
	}
}

// SweepOnce hace una pasada y devuelve cuántos rows reintentó.
// Exportado para tests y para un trigger manual de ops.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()

	rows, err := s.messages.ListSweepable(ctx, now.Add(-s.staleAfter), s.maxRetries)
	if err != nil {
		return 0, err
	}

	attempted := 0
	for _, m := range rows {
		if ctx.Err() != nil {
			return attempted, ctx.Err()
		}

		switch m.Status {
		case StatusFailed:
			if !s.retryFailed(ctx, m, now) {
				continue
			}
			attempted++

		case StatusQueued:
			// Huérfano: nunca se intentó. staleAfter >= 2×sendTimeout
			// garantiza que el task original ya soltó el row, sea por
			// la espera del semáforo o por el deadline del intento.
			s.dispatcher.attempt(ctx, m)
			attempted++
		}
	}

	return attempted, nil
}

// retryFailed re-encola un row failed si ya venció su backoff y reintenta.
// Devuelve false si el row todavía no está listo o si perdió el CAS.
func (s *Sweeper) retryFailed(ctx context.Context, m Message, now time.Time) bool {
	if !m.Retryable || m.RetryCount >= s.maxRetries {
		return false
	}

	failedAt := m.UpdatedAt
	if m.FailedAt != nil {
		failedAt = *m.FailedAt
	}
	// backoff exponencial: base * 2^retryCount
	due := failedAt.Add(s.backoffBase << uint(m.RetryCount))
	if now.Before(due) {
		return false
	}

	rc := m.RetryCount + 1
	won, err := s.messages.CompareAndSetStatus(ctx, m.ID, StatusFailed, StatusQueued, StatusPatch{
		RetryCount: &rc,
	})
	if err != nil {
		s.log.Error("requeue failed", map[string]any{"message_id": m.ID, "error": err.Error()})
		return false
	}
	if !won {
		// otro sweep (u operador) ya lo tomó
		return false
	}

	m.Status = StatusQueued
	m.RetryCount = rc
	s.dispatcher.attempt(ctx, m)
	return true
}

package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/clinics"
	"github.com/PetSOS-teamsite/petsos-sub001/internal/ports/channels"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_CreatesRowPerContactableChannel(t *testing.T) {
	repo := newTestMessagesRepo()
	d := newTestDispatcher(repo, map[clinics.Channel]channels.Sender{
		clinics.ChannelWhatsApp: okSender(),
		clinics.ChannelEmail:    okSender(),
	}, 0)

	both := clinicA()
	both.Email = "er@harbour.example.com" // whatsapp + email

	created, err := d.Dispatch(context.Background(), "req-1", "alert body", []clinics.Clinic{both}, DispatchOptions{WaitFirstAttempt: true})
	require.NoError(t, err)
	require.Len(t, created, 2)

	rows := repo.inOrder()
	require.Len(t, rows, 2)
	assert.Equal(t, clinics.ChannelWhatsApp, rows[0].Channel)
	assert.Equal(t, clinics.ChannelEmail, rows[1].Channel)
	for _, m := range rows {
		assert.Equal(t, StatusSent, m.Status)
		assert.Equal(t, "req-1", m.EmergencyRequestID)
		assert.Equal(t, both.ID, m.ClinicID)
		assert.NotNil(t, m.SentAt)
	}
}

func TestDispatch_ClinicWithoutChannelsCreatesNothing(t *testing.T) {
	repo := newTestMessagesRepo()
	d := newTestDispatcher(repo, map[clinics.Channel]channels.Sender{
		clinics.ChannelWhatsApp: okSender(),
		clinics.ChannelEmail:    okSender(),
	}, 0)

	phoneOnly := clinicA()
	phoneOnly.WhatsApp = ""
	phoneOnly.Email = ""

	created, err := d.Dispatch(context.Background(), "req-1", "alert body", []clinics.Clinic{phoneOnly}, DispatchOptions{WaitFirstAttempt: true})
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Empty(t, repo.inOrder())
}

func TestDispatch_OneFailureDoesNotAbortOthers(t *testing.T) {
	repo := newTestMessagesRepo()
	d := newTestDispatcher(repo, map[clinics.Channel]channels.Sender{
		clinics.ChannelWhatsApp: okSender(),
		clinics.ChannelEmail: senderFunc(func(ctx context.Context, address, content string) (channels.Receipt, error) {
			return channels.Receipt{}, channels.Transient(errors.New("smtp down"))
		}),
	}, 0)

	created, err := d.Dispatch(context.Background(), "req-1", "alert body",
		[]clinics.Clinic{clinicA(), clinicB()}, DispatchOptions{WaitFirstAttempt: true})
	require.NoError(t, err)
	require.Len(t, created, 2)

	byClinic := map[string]Message{}
	for _, m := range repo.inOrder() {
		byClinic[m.ClinicID] = m
	}

	assert.Equal(t, StatusSent, byClinic["clinic-a"].Status)
	assert.Equal(t, StatusFailed, byClinic["clinic-b"].Status)
	assert.True(t, byClinic["clinic-b"].Retryable)
	assert.Contains(t, byClinic["clinic-b"].ErrorMessage, "smtp down")
	assert.NotNil(t, byClinic["clinic-b"].FailedAt)
}

func TestDispatch_PermanentFailureIsNotRetryable(t *testing.T) {
	repo := newTestMessagesRepo()
	d := newTestDispatcher(repo, map[clinics.Channel]channels.Sender{
		clinics.ChannelWhatsApp: senderFunc(func(ctx context.Context, address, content string) (channels.Receipt, error) {
			return channels.Receipt{}, channels.Permanent(errors.New("invalid number"))
		}),
	}, 0)

	_, err := d.Dispatch(context.Background(), "req-1", "alert body", []clinics.Clinic{clinicA()}, DispatchOptions{WaitFirstAttempt: true})
	require.NoError(t, err)

	rows := repo.inOrder()
	require.Len(t, rows, 1)
	assert.Equal(t, StatusFailed, rows[0].Status)
	assert.False(t, rows[0].Retryable)
}

func TestDispatch_MissingSenderFailsPermanently(t *testing.T) {
	repo := newTestMessagesRepo()
	// sin sender de email configurado
	d := newTestDispatcher(repo, map[clinics.Channel]channels.Sender{
		clinics.ChannelWhatsApp: okSender(),
	}, 0)

	_, err := d.Dispatch(context.Background(), "req-1", "alert body", []clinics.Clinic{clinicB()}, DispatchOptions{WaitFirstAttempt: true})
	require.NoError(t, err)

	rows := repo.inOrder()
	require.Len(t, rows, 1)
	assert.Equal(t, StatusFailed, rows[0].Status)
	assert.False(t, rows[0].Retryable)
}

func TestDispatch_ReinvokeCreatesNewRows(t *testing.T) {
	repo := newTestMessagesRepo()
	d := newTestDispatcher(repo, map[clinics.Channel]channels.Sender{
		clinics.ChannelWhatsApp: okSender(),
	}, 0)

	ctx := context.Background()
	_, err := d.Dispatch(ctx, "req-1", "alert body", []clinics.Clinic{clinicA()}, DispatchOptions{WaitFirstAttempt: true})
	require.NoError(t, err)
	_, err = d.Dispatch(ctx, "req-1", "alert body", []clinics.Clinic{clinicA()}, DispatchOptions{WaitFirstAttempt: true})
	require.NoError(t, err)

	rows := repo.inOrder()
	require.Len(t, rows, 2)
	assert.NotEqual(t, rows[0].ID, rows[1].ID)
}

func TestDispatch_CreationOrderFollowsCandidateOrder(t *testing.T) {
	repo := newTestMessagesRepo()
	d := newTestDispatcher(repo, map[clinics.Channel]channels.Sender{
		clinics.ChannelWhatsApp: okSender(),
		clinics.ChannelEmail:    okSender(),
	}, 0)

	// B antes que A a propósito: el dispatcher respeta el orden recibido,
	// rankear es problema del orquestador.
	_, err := d.Dispatch(context.Background(), "req-1", "alert body",
		[]clinics.Clinic{clinicB(), clinicA()}, DispatchOptions{WaitFirstAttempt: true})
	require.NoError(t, err)

	rows := repo.inOrder()
	require.Len(t, rows, 2)
	assert.Equal(t, "clinic-b", rows[0].ClinicID)
	assert.Equal(t, "clinic-a", rows[1].ClinicID)
}

func TestDispatch_ConcurrencyIsBounded(t *testing.T) {
	repo := newTestMessagesRepo()

	var mu sync.Mutex
	inflight, peak := 0, 0
	gate := make(chan struct{})

	slow := senderFunc(func(ctx context.Context, address, content string) (channels.Receipt, error) {
		mu.Lock()
		inflight++
		if inflight > peak {
			peak = inflight
		}
		mu.Unlock()

		<-gate

		mu.Lock()
		inflight--
		mu.Unlock()
		return channels.Receipt{}, nil
	})

	const maxInflight = 2
	d := newTestDispatcher(repo, map[clinics.Channel]channels.Sender{
		clinics.ChannelWhatsApp: slow,
	}, maxInflight)

	candidates := make([]clinics.Clinic, 0, 6)
	for i := 0; i < 6; i++ {
		c := clinicA()
		c.ID = "clinic-" + string(rune('0'+i))
		candidates = append(candidates, c)
	}

	done := make(chan struct{})
	go func() {
		_, _ = d.Dispatch(context.Background(), "req-1", "alert body", candidates, DispatchOptions{WaitFirstAttempt: true})
		close(done)
	}()

	// libera a todos; el pico ya quedó registrado
	close(gate)
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, maxInflight)
}

// Con el único slot del semáforo ocupado por un proveedor colgado, el
// segundo task tiene que soltar su row al vencer sendTimeout en vez de
// quedarse esperando: si siguiera vivo, el sweep rescataría el row y la
// clínica recibiría la alerta dos veces.
func TestDispatch_SemaphoreWaitBoundedBySendTimeout(t *testing.T) {
	repo := newTestMessagesRepo()

	holder := clinicA()
	waiter := clinicA()
	waiter.ID = "clinic-waiting"
	waiter.WhatsApp = "+85269999999"

	gate := make(chan struct{})
	var mu sync.Mutex
	calls := map[string]int{}

	sender := senderFunc(func(ctx context.Context, address, content string) (channels.Receipt, error) {
		mu.Lock()
		calls[address]++
		mu.Unlock()
		if address == holder.WhatsApp {
			// proveedor colgado que además ignora el ctx: retiene el
			// slot hasta que el test lo libera
			<-gate
		}
		return channels.Receipt{}, nil
	})

	d := NewDispatcher(repo, map[clinics.Channel]channels.Sender{
		clinics.ChannelWhatsApp: sender,
	}, DispatcherOptions{MaxInflight: 1, SendTimeout: 30 * time.Millisecond})

	created, err := d.Dispatch(context.Background(), "req-1", "alert body",
		[]clinics.Clinic{holder, waiter}, DispatchOptions{})
	require.NoError(t, err)
	require.Len(t, created, 2)

	// bastante más que sendTimeout: el segundo task ya abandonó la espera
	time.Sleep(150 * time.Millisecond)
	close(gate)

	waitForStatus(t, repo, created[0].ID, StatusSent)

	mu.Lock()
	assert.Equal(t, 0, calls[waiter.WhatsApp], "abandoned task must never reach the provider")
	mu.Unlock()

	m, err := repo.GetByID(context.Background(), created[1].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, m.Status)
}

func waitForStatus(t *testing.T, repo *testMessagesRepo, id string, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		if m.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("message %s never reached %s", id, want)
}

func TestDispatch_ProviderMessageIDStored(t *testing.T) {
	repo := newTestMessagesRepo()
	d := newTestDispatcher(repo, map[clinics.Channel]channels.Sender{
		clinics.ChannelWhatsApp: senderFunc(func(ctx context.Context, address, content string) (channels.Receipt, error) {
			return channels.Receipt{ProviderMessageID: "wamid.123"}, nil
		}),
	}, 0)

	_, err := d.Dispatch(context.Background(), "req-1", "alert body", []clinics.Clinic{clinicA()}, DispatchOptions{WaitFirstAttempt: true})
	require.NoError(t, err)

	rows := repo.inOrder()
	require.Len(t, rows, 1)
	assert.Equal(t, StatusSent, rows[0].Status)
	assert.Equal(t, "wamid.123", rows[0].ProviderMessageID)
}

func TestDispatch_CancelledContextLeavesRowsQueued(t *testing.T) {
	repo := newTestMessagesRepo()
	d := newTestDispatcher(repo, map[clinics.Channel]channels.Sender{
		clinics.ChannelWhatsApp: okSender(),
	}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // deadline ya vencido antes de intentar

	created, err := d.Dispatch(ctx, "req-1", "alert body", []clinics.Clinic{clinicA()}, DispatchOptions{WaitFirstAttempt: true})
	require.NoError(t, err)
	require.Len(t, created, 1)

	// El row existe y sigue queued: lo levanta el sweep, no se abandona.
	rows := repo.inOrder()
	require.Len(t, rows, 1)
	assert.Equal(t, StatusQueued, rows[0].Status)
}

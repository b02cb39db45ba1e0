package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/broadcast"
)

func seedMessage(t *testing.T, repo broadcast.MessageRepository, id string, status broadcast.Status) {
	t.Helper()
	err := repo.Create(context.Background(), broadcast.Message{
		ID:                 id,
		EmergencyRequestID: "req-1",
		ClinicID:           "clinic-1",
		Recipient:          "+85260000000",
		Content:            "alert",
		Status:             status,
		Retryable:          true,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	})
	if err != nil {
		t.Fatalf("seeding %s: %v", id, err)
	}
}

func TestCompareAndSetStatus_Transitions(t *testing.T) {
	repo := NewMessagesRepo()
	ctx := context.Background()
	seedMessage(t, repo, "m1", broadcast.StatusQueued)

	now := time.Now()
	pid := "wamid.1"
	won, err := repo.CompareAndSetStatus(ctx, "m1", broadcast.StatusQueued, broadcast.StatusSent, broadcast.StatusPatch{
		SentAt:            &now,
		ProviderMessageID: &pid,
	})
	if err != nil || !won {
		t.Fatalf("expected CAS win, got won=%v err=%v", won, err)
	}

	m, err := repo.GetByID(ctx, "m1")
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if m.Status != broadcast.StatusSent || m.SentAt == nil || m.ProviderMessageID != "wamid.1" {
		t.Fatalf("patch not applied: %#v", m)
	}

	// la precondición ya no matchea
	won, err = repo.CompareAndSetStatus(ctx, "m1", broadcast.StatusQueued, broadcast.StatusSent, broadcast.StatusPatch{})
	if err != nil {
		t.Fatalf("CAS error: %v", err)
	}
	if won {
		t.Fatalf("stale precondition must lose")
	}
}

func TestCompareAndSetStatus_RejectsInvalidTransition(t *testing.T) {
	repo := NewMessagesRepo()
	ctx := context.Background()
	seedMessage(t, repo, "m1", broadcast.StatusDelivered)

	won, err := repo.CompareAndSetStatus(ctx, "m1", broadcast.StatusDelivered, broadcast.StatusQueued, broadcast.StatusPatch{})
	if err != nil {
		t.Fatalf("CAS error: %v", err)
	}
	if won {
		t.Fatalf("delivered must be terminal")
	}

	m, _ := repo.GetByID(ctx, "m1")
	if m.Status != broadcast.StatusDelivered {
		t.Fatalf("status must not change, got %s", m.Status)
	}
}

func TestCompareAndSetStatus_NotFound(t *testing.T) {
	repo := NewMessagesRepo()
	_, err := repo.CompareAndSetStatus(context.Background(), "ghost", broadcast.StatusQueued, broadcast.StatusSent, broadcast.StatusPatch{})
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCompareAndSetStatus_SingleWinnerUnderContention(t *testing.T) {
	repo := NewMessagesRepo()
	ctx := context.Background()
	seedMessage(t, repo, "m1", broadcast.StatusQueued)

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := repo.CompareAndSetStatus(ctx, "m1", broadcast.StatusQueued, broadcast.StatusSent, broadcast.StatusPatch{})
			if err != nil {
				t.Errorf("CAS error: %v", err)
				return
			}
			wins <- won
		}()
	}
	wg.Wait()
	close(wins)

	total := 0
	for won := range wins {
		if won {
			total++
		}
	}
	if total != 1 {
		t.Fatalf("expected exactly one winner, got %d", total)
	}
}

func TestListSweepable(t *testing.T) {
	repo := NewMessagesRepo()
	ctx := context.Background()

	// failed reintentables entran; los agotados y permanentes no
	seedMessage(t, repo, "fresh-queued", broadcast.StatusQueued)
	seedMessage(t, repo, "retryable-failed", broadcast.StatusFailed)
	seedMessage(t, repo, "sent", broadcast.StatusSent)

	exhausted := broadcast.Message{
		ID:         "exhausted-failed",
		Status:     broadcast.StatusFailed,
		Retryable:  true,
		RetryCount: 3,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := repo.Create(ctx, exhausted); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	permanent := broadcast.Message{
		ID:        "permanent-failed",
		Status:    broadcast.StatusFailed,
		Retryable: false,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := repo.Create(ctx, permanent); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	stale := broadcast.Message{
		ID:        "stale-queued",
		Status:    broadcast.StatusQueued,
		Retryable: true,
		CreatedAt: time.Now().Add(-time.Hour),
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	if err := repo.Create(ctx, stale); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	got, err := repo.ListSweepable(ctx, time.Now().Add(-2*time.Minute), 3)
	if err != nil {
		t.Fatalf("ListSweepable error: %v", err)
	}

	ids := map[string]bool{}
	for _, m := range got {
		ids[m.ID] = true
	}
	if len(got) != 2 || !ids["retryable-failed"] || !ids["stale-queued"] {
		t.Fatalf("expected {retryable-failed, stale-queued}, got %v", ids)
	}
}

func TestGetByProviderMessageID_LatestWins(t *testing.T) {
	repo := NewMessagesRepo()
	ctx := context.Background()

	old := broadcast.Message{
		ID:                "m-old",
		Status:            broadcast.StatusSent,
		ProviderMessageID: "wamid.7",
		CreatedAt:         time.Now().Add(-time.Hour),
	}
	recent := broadcast.Message{
		ID:                "m-new",
		Status:            broadcast.StatusSent,
		ProviderMessageID: "wamid.7",
		CreatedAt:         time.Now(),
	}
	if err := repo.Create(ctx, old); err != nil {
		t.Fatalf("seeding: %v", err)
	}
	if err := repo.Create(ctx, recent); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	got, err := repo.GetByProviderMessageID(ctx, "wamid.7")
	if err != nil {
		t.Fatalf("GetByProviderMessageID error: %v", err)
	}
	if got.ID != "m-new" {
		t.Fatalf("expected most recent row, got %s", got.ID)
	}

	if _, err := repo.GetByProviderMessageID(ctx, "wamid.ghost"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListByRequest_SortedByCreatedAt(t *testing.T) {
	repo := NewMessagesRepo()
	ctx := context.Background()

	base := time.Now()
	for i, id := range []string{"m-b", "m-a", "m-c"} {
		m := broadcast.Message{
			ID:                 id,
			EmergencyRequestID: "req-1",
			Status:             broadcast.StatusQueued,
			CreatedAt:          base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(ctx, m); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}
	other := broadcast.Message{ID: "m-other", EmergencyRequestID: "req-2", CreatedAt: base}
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	got, err := repo.ListByRequest(ctx, "req-1")
	if err != nil {
		t.Fatalf("ListByRequest error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	if got[0].ID != "m-b" || got[1].ID != "m-a" || got[2].ID != "m-c" {
		t.Fatalf("expected creation order, got %s,%s,%s", got[0].ID, got[1].ID, got[2].ID)
	}
}

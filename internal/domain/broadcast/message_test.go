package broadcast

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusQueued, StatusSent},
		{StatusQueued, StatusFailed},
		{StatusSent, StatusDelivered},
		{StatusSent, StatusFailed},
		{StatusFailed, StatusQueued},
	}
	for _, tr := range allowed {
		if !CanTransition(tr.from, tr.to) {
			t.Errorf("expected %s -> %s to be valid", tr.from, tr.to)
		}
	}

	// el status observado nunca regresa
	denied := []struct{ from, to Status }{
		{StatusSent, StatusQueued},
		{StatusDelivered, StatusQueued},
		{StatusDelivered, StatusSent},
		{StatusDelivered, StatusFailed},
		{StatusFailed, StatusSent},
		{StatusFailed, StatusDelivered},
		{StatusQueued, StatusDelivered},
		{StatusQueued, StatusQueued},
	}
	for _, tr := range denied {
		if CanTransition(tr.from, tr.to) {
			t.Errorf("expected %s -> %s to be rejected", tr.from, tr.to)
		}
	}
}

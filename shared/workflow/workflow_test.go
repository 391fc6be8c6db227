package workflow

import "testing"

func TestCanTransition(t *testing.T) {
	if !CanTransition(StatusPending, StatusAccepted) {
		t.Fatalf("expected pending -> accepted to be allowed")
	}
	if !CanTransition(StatusAccepted, StatusDispatched) {
		t.Fatalf("expected accepted -> dispatched to be allowed")
	}
	if !CanTransition(StatusDispatched, StatusWaiting) {
		t.Fatalf("expected dispatched -> waiting to be allowed")
	}
	if CanTransition(StatusPending, StatusDispatched) {
		t.Fatalf("expected pending -> dispatched to be blocked")
	}
	if CanTransition(StatusAccepted, StatusAccepted) {
		t.Fatalf("expected accepted -> accepted to be blocked")
	}
	if CanTransition(StatusCompleted, StatusPending) {
		t.Fatalf("expected completed -> pending to be blocked")
	}
}

func TestTransferReentersPending(t *testing.T) {
	if !CanTransition(StatusPending, StatusPending) {
		t.Fatalf("expected pending -> pending (transfer) to be allowed")
	}
	if ActionForTransition(StatusPending, StatusPending) != ActionTransferred {
		t.Fatalf("expected transfer action for pending -> pending")
	}
	if !CanTransfer(StatusAccepted) {
		t.Fatalf("expected transfer from accepted to be allowed")
	}
	if CanTransfer(StatusFailed) {
		t.Fatalf("expected transfer from failed to be blocked")
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []string{StatusCompleted, StatusWaiting, StatusFailed} {
		if !IsTerminal(s) {
			t.Fatalf("expected %s to be terminal", s)
		}
		if !IsResultStatus(s) {
			t.Fatalf("expected %s to be a result status", s)
		}
	}
	if IsTerminal(StatusDispatched) {
		t.Fatalf("expected dispatched to be non-terminal")
	}
	if IsResultStatus(StatusAccepted) {
		t.Fatalf("expected accepted to not be a result status")
	}
}

func TestIsStatus(t *testing.T) {
	for _, s := range AllStatuses() {
		if !IsStatus(s) {
			t.Fatalf("expected %s to be a known status", s)
		}
	}
	if !IsStatus("  PENDING ") {
		t.Fatalf("expected normalization before the membership check")
	}
	for _, s := range []string{"", "bogus", "done"} {
		if IsStatus(s) {
			t.Fatalf("expected %q to be unknown", s)
		}
	}
}

func TestActionForTransition(t *testing.T) {
	if ActionForTransition(StatusDispatched, StatusCompleted) != ActionClosed {
		t.Fatalf("expected closed action for dispatched -> completed")
	}
	if ActionForTransition(StatusCompleted, StatusPending) != "" {
		t.Fatalf("expected no action out of a terminal status")
	}
}

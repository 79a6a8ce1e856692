package domain

import "testing"

func TestTransitionStateLegal(t *testing.T) {
	tr := &Trade{Status: StatusInit}
	if err := tr.TransitionState(StatusPending, "submit entry limit"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.TransitionState(StatusFilled, "broker reports FILLED"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.TransitionState(StatusStopLossPlaced, "stop armed"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.TransitionState(StatusFilled, "stop cancelled for re-placement"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.TransitionState(StatusExiting, "ladder triggered exit"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tr.TransitionState(StatusClosed, "exit order filled"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTransitionStateIllegal(t *testing.T) {
	tr := &Trade{Status: StatusClosed}
	if err := tr.TransitionState(StatusFilled, "bogus"); err == nil {
		t.Fatalf("expected error transitioning out of terminal state")
	}
}

func TestTransitionStateIdempotentReentry(t *testing.T) {
	tr := &Trade{Status: StatusExiting}
	if err := tr.TransitionState(StatusClosed, "exit filled"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// re-running the same transition from the already-terminal state must fail,
	// which is what lets a caller detect "already handled" and skip re-mutating.
	if err := tr.TransitionState(StatusClosed, "exit filled again"); err == nil {
		t.Fatalf("expected error re-transitioning a terminal trade")
	}
}

func TestRaiseStopLossNeverLowers(t *testing.T) {
	tr := &Trade{StopLossPrice: 1.50}
	tr.RaiseStopLoss(1.20)
	if tr.StopLossPrice != 1.50 {
		t.Fatalf("stop loss lowered: got %v", tr.StopLossPrice)
	}
	tr.RaiseStopLoss(1.75)
	if tr.StopLossPrice != 1.75 {
		t.Fatalf("stop loss did not raise: got %v", tr.StopLossPrice)
	}
}

func TestRemainingQuantity(t *testing.T) {
	tr := &Trade{EntryQuantity: 20, ScaledOutQty: 10}
	if got := tr.RemainingQuantity(); got != 10 {
		t.Fatalf("remaining = %d, want 10", got)
	}
}

package domain

import "testing"

func TestMarkRejectedSetsReason(t *testing.T) {
	a := &Alert{Status: AlertReceived}
	a.MarkRejected("duplicate signal")
	if a.Status != AlertRejected {
		t.Fatalf("status = %v, want %v", a.Status, AlertRejected)
	}
	if a.RejectionReason != "duplicate signal" {
		t.Fatalf("reason = %q", a.RejectionReason)
	}
}

func TestMarkRejectedNoOpOnceTerminal(t *testing.T) {
	a := &Alert{Status: AlertProcessed}
	a.MarkRejected("too late")
	if a.Status != AlertProcessed {
		t.Fatalf("status changed on terminal alert: %v", a.Status)
	}
	if a.RejectionReason != "" {
		t.Fatalf("expected no rejection reason, got %q", a.RejectionReason)
	}
}

func TestMarkProcessedLinksTrade(t *testing.T) {
	a := &Alert{Status: AlertAccepted}
	a.MarkProcessed(42)
	if a.Status != AlertProcessed {
		t.Fatalf("status = %v, want %v", a.Status, AlertProcessed)
	}
	if a.TradeID == nil || *a.TradeID != 42 {
		t.Fatalf("trade id = %v, want 42", a.TradeID)
	}
}

func TestAlertStatusIsTerminal(t *testing.T) {
	cases := map[AlertStatus]bool{
		AlertReceived:  false,
		AlertAccepted:  false,
		AlertRejected:  true,
		AlertProcessed: true,
		AlertError:     true,
	}
	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%v.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

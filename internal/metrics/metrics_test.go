package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndGaugeTrackMutations(t *testing.T) {
	TradesOpened.Inc()
	TradesClosed.WithLabelValues("PROFIT_TARGET").Inc()
	AlertsRejected.WithLabelValues("max daily trades reached").Inc()
	OpenPositions.Inc()
	OpenPositions.Inc()
	OpenPositions.Dec()

	if got := testutil.ToFloat64(TradesOpened); got != 1 {
		t.Fatalf("TradesOpened = %v, want 1", got)
	}
	if got := testutil.ToFloat64(TradesClosed.WithLabelValues("PROFIT_TARGET")); got != 1 {
		t.Fatalf("TradesClosed[PROFIT_TARGET] = %v, want 1", got)
	}
	if got := testutil.ToFloat64(AlertsRejected.WithLabelValues("max daily trades reached")); got != 1 {
		t.Fatalf("AlertsRejected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(OpenPositions); got != 1 {
		t.Fatalf("OpenPositions = %v, want 1", got)
	}
}

func TestRegistryGathersEveryCollector(t *testing.T) {
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, want := range []string{
		"optionagent_trades_opened_total",
		"optionagent_trades_closed_total",
		"optionagent_alerts_rejected_total",
		"optionagent_poll_latency_seconds",
		"optionagent_open_positions",
	} {
		if !names[want] {
			t.Fatalf("registry missing metric family %q, got %v", want, names)
		}
	}
}

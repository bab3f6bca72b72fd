package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()

	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)

	var total float64
	for metric := range ch {
		var out dto.Metric
		if err := metric.Write(&out); err != nil {
			t.Fatalf("write metric: %v", err)
		}
		total += out.GetCounter().GetValue()
	}
	return total
}

func TestMarketplaceMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMarketplaceMetricsWithRegisterer(reg)

	m.RecordOrdersCreated(2, 10*time.Millisecond)
	m.RecordCheckoutFailed()
	m.RecordTransition("request_cancel", "require_cancel")
	m.RecordTransition("request_cancel", "require_cancel")
	m.RecordTransitionRejected("request_refund")
	m.RecordStockAdjusted("reserve", 3)
	m.RecordStockAdjusted("release", 0)
	m.RecordCallback("zalopay", CallbackApplied)
	m.RecordTimelineEvent()
	m.RecordOutboxEvent()

	if got := counterValue(t, m.ordersCreated); got != 2 {
		t.Errorf("expected 2 orders created, got %v", got)
	}
	if got := counterValue(t, m.checkoutFailed); got != 1 {
		t.Errorf("expected 1 failed checkout, got %v", got)
	}
	if got := counterValue(t, m.transitions.WithLabelValues("request_cancel", "require_cancel")); got != 2 {
		t.Errorf("expected 2 transitions, got %v", got)
	}
	if got := counterValue(t, m.transitionErrors); got != 1 {
		t.Errorf("expected 1 rejected transition, got %v", got)
	}
	if got := counterValue(t, m.stockAdjustments); got != 3 {
		t.Errorf("expected 3 units adjusted, got %v", got)
	}
	if got := counterValue(t, m.callbacks.WithLabelValues("zalopay", CallbackApplied)); got != 1 {
		t.Errorf("expected 1 callback, got %v", got)
	}
}

func TestMarketplaceMetrics_ReRegisterReturnsExisting(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMarketplaceMetricsWithRegisterer(reg)
	second := NewMarketplaceMetricsWithRegisterer(reg)

	first.RecordOutboxEvent()
	if got := counterValue(t, second.outboxEvents); got != 1 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestMarketplaceMetrics_NilSafe(t *testing.T) {
	var m *MarketplaceMetrics

	m.RecordOrdersCreated(1, time.Second)
	m.RecordCheckoutFailed()
	m.RecordTransition("reject", "rejected")
	m.RecordTransitionRejected("reject")
	m.RecordStockAdjusted("restock", 1)
	m.RecordCallback("zalopay", CallbackBadMAC)
	m.RecordTimelineEvent()
	m.RecordOutboxEvent()
}

package multiauth

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap.Counters)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 16
	const perG = 2000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricNotificationDropped)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricNotificationDropped); got != goroutines*perG {
		t.Fatalf("expected %d, got %d", goroutines*perG, got)
	}
}

func TestMetricsResolveLatencyBuckets(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	for _, d := range []time.Duration{
		10 * time.Millisecond,
		75 * time.Millisecond,
		300 * time.Millisecond,
		2 * time.Second,
		10 * time.Second,
	} {
		m.Observe(MetricResolveLatency, d)
	}
	m.Observe(MetricLoginSuccess, time.Second)

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricResolveLatency]
	want := []uint64{1, 1, 0, 1, 0, 1, 0, 1}
	for i := range want {
		if buckets[i] != want[i] {
			t.Fatalf("bucket %d: expected %d, got %d (%v)", i, want[i], buckets[i], buckets)
		}
	}
	if _, ok := snap.Counters[MetricResolveLatency]; ok {
		t.Fatal("latency must not appear as a counter")
	}
}

func TestMetricsHistogramDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricResolveLatency, time.Second)
	if _, ok := m.Snapshot().Histograms[MetricResolveLatency]; ok {
		t.Fatal("expected no histogram when latency is disabled")
	}
}

func TestOrchestratorRecordsResolveLatency(t *testing.T) {
	h := newHarness(t, nil)
	h.login(emailA, passA, false)
	_ = h.o.SwitchAccount(context.Background(), userA)

	snap := h.o.MetricsSnapshot()
	var total uint64
	for _, n := range snap.Histograms[MetricResolveLatency] {
		total += n
	}
	if total != 1 {
		t.Fatalf("expected one resolution observed, got %d", total)
	}
	if snap.Counters[MetricLoginSuccess] != 1 || snap.Counters[MetricSwitchFastPath] != 1 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
}

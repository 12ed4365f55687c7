package metrics

import (
	"sync"
	"testing"
)

func TestIncAndValue(t *testing.T) {
	m := New(Config{Enabled: true})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLogout)

	if got := m.Value(MetricLoginSuccess); got != 2 {
		t.Fatalf("login success = %d, want 2", got)
	}
	if got := m.Value(MetricLogout); got != 1 {
		t.Fatalf("logout = %d, want 1", got)
	}
	if got := m.Value(MetricRefreshFailure); got != 0 {
		t.Fatalf("untouched counter = %d, want 0", got)
	}
}

func TestDisabledAndNilAreNoOps(t *testing.T) {
	disabled := New(Config{})
	disabled.Inc(MetricLoginSuccess)
	if got := disabled.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("disabled counter = %d, want 0", got)
	}
	if len(disabled.Snapshot().Counters) != 0 {
		t.Fatal("disabled snapshot must be empty")
	}

	var m *Metrics
	m.Inc(MetricLoginSuccess)
	if m.Enabled() {
		t.Fatal("nil metrics reported enabled")
	}
	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("nil counter = %d, want 0", got)
	}
}

func TestOutOfRangeIDIgnored(t *testing.T) {
	m := New(Config{Enabled: true})
	m.Inc(MetricIDCount)
	m.Inc(MetricID(1000))
	if got := m.Value(MetricID(1000)); got != 0 {
		t.Fatalf("out of range read = %d, want 0", got)
	}
}

func TestSnapshotCoversAllIDs(t *testing.T) {
	m := New(Config{Enabled: true})
	m.Inc(MetricPermCacheHit)

	s := m.Snapshot()
	if len(s.Counters) != int(MetricIDCount) {
		t.Fatalf("snapshot has %d entries, want %d", len(s.Counters), MetricIDCount)
	}
	if s.Counters[MetricPermCacheHit] != 1 {
		t.Fatalf("cache hit = %d, want 1", s.Counters[MetricPermCacheHit])
	}
}

func TestConcurrentInc(t *testing.T) {
	m := New(Config{Enabled: true})

	const workers = 8
	const perWorker = 1000
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricVerifySuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricVerifySuccess); got != workers*perWorker {
		t.Fatalf("verify success = %d, want %d", got, workers*perWorker)
	}
}

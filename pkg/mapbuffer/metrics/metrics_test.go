package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/stats"
)

func gatherNames(t *testing.T, reg *prometheus.Registry) map[string]int {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := make(map[string]int)
	for _, fam := range families {
		names[fam.GetName()] = len(fam.GetMetric())
	}
	return names
}

func TestRecorderExportsExpectedFamilies(t *testing.T) {
	c := stats.NewCollector()
	c.Track(stats.OpGet, 10*time.Millisecond)
	c.Track(stats.OpBuild, 20*time.Millisecond)
	c.TrackHit()
	c.TrackMiss()
	c.TrackBytesRead(1024)
	c.TrackBytesBuilt(2048)
	c.TrackError("truncated-buffer")

	reg := prometheus.NewRegistry()
	rec := NewRecorder(c)
	if err := reg.Register(rec); err != nil {
		t.Fatalf("Register: %v", err)
	}

	names := gatherNames(t, reg)
	for _, want := range []string{
		"mapbuffer_operation_total",
		"mapbuffer_operation_latency_seconds",
		"mapbuffer_lookup_hit_ratio",
		"mapbuffer_bytes_read_total",
		"mapbuffer_bytes_built_total",
		"mapbuffer_errors_total",
	} {
		if _, ok := names[want]; !ok {
			t.Errorf("missing metric family %q, got %v", want, names)
		}
	}

	if n := names["mapbuffer_operation_total"]; n != len(operations) {
		t.Errorf("mapbuffer_operation_total has %d series, want %d (one per operation)", n, len(operations))
	}
}

func TestRecorderOnNilCollectorStillCollects(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewRecorder(nil)
	if err := reg.Register(rec); err != nil {
		t.Fatalf("Register: %v", err)
	}

	names := gatherNames(t, reg)
	if n := names["mapbuffer_operation_total"]; n != len(operations) {
		t.Errorf("mapbuffer_operation_total has %d series, want %d", n, len(operations))
	}
	if n := names["mapbuffer_bytes_read_total"]; n != 1 {
		t.Errorf("mapbuffer_bytes_read_total has %d series, want 1", n)
	}
}

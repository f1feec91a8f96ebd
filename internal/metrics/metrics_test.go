package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if httpRequestsTotal == nil || httpRequestDurationSeconds == nil ||
		fetchTotal == nil || gridTotal == nil || puzzlesTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFetch(t *testing.T) {
	Init()
	before := testutil.ToFloat64(fetchTotal.WithLabelValues("gzip", OutcomeSuccess))
	ObserveFetch("gzip", true)
	ObserveFetch("brotli", false)

	if val := testutil.ToFloat64(fetchTotal.WithLabelValues("gzip", OutcomeSuccess)); val != before+1 {
		t.Errorf("Expected gzip success to be %f, got %f", before+1, val)
	}
	if val := testutil.ToFloat64(fetchTotal.WithLabelValues("brotli", OutcomeFailure)); val < 1 {
		t.Errorf("Expected brotli failure to be recorded, got %f", val)
	}
}

func TestObserveGridAndPuzzle(t *testing.T) {
	Init()
	before := testutil.ToFloat64(gridTotal.WithLabelValues("center_crop"))
	ObserveGrid("center_crop")
	if val := testutil.ToFloat64(gridTotal.WithLabelValues("center_crop")); val != before+1 {
		t.Errorf("Expected center_crop to be %f, got %f", before+1, val)
	}

	before = testutil.ToFloat64(puzzlesTotal.WithLabelValues("degraded"))
	ObservePuzzle("degraded")
	if val := testutil.ToFloat64(puzzlesTotal.WithLabelValues("degraded")); val != before+1 {
		t.Errorf("Expected degraded to be %f, got %f", before+1, val)
	}
}

func TestObserveFetchDuration(t *testing.T) {
	Init()
	ObserveFetchDuration("colly", 250*time.Millisecond)
	if val := testutil.CollectAndCount(fetchDurationSeconds); val <= 0 {
		t.Errorf("Expected fetch durations to be observed, got %d", val)
	}
}

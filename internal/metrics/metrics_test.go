package metrics

import (
	"testing"

	"github.com/oremus-labs/lockin/internal/stream"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveDecoder(t *testing.T) {
	beforeRecords := testutil.ToFloat64(streamRecords)
	beforeJSON := testutil.ToFloat64(streamDropped.WithLabelValues("invalid_json"))
	beforeTruncated := testutil.ToFloat64(streamTruncated)

	ObserveDecoder(stream.Stats{
		Records:        4,
		Events:         3,
		Dropped:        map[stream.DropReason]int{stream.DropInvalidJSON: 1},
		TruncatedBytes: 12,
	})

	if got := testutil.ToFloat64(streamRecords) - beforeRecords; got != 4 {
		t.Fatalf("expected 4 records, got %v", got)
	}
	if got := testutil.ToFloat64(streamDropped.WithLabelValues("invalid_json")) - beforeJSON; got != 1 {
		t.Fatalf("expected 1 invalid_json drop, got %v", got)
	}
	if got := testutil.ToFloat64(streamTruncated) - beforeTruncated; got != 12 {
		t.Fatalf("expected 12 truncated bytes, got %v", got)
	}
}

func TestObserveEventByKind(t *testing.T) {
	before := testutil.ToFloat64(streamEvents.WithLabelValues("file_created"))
	ObserveEvent(stream.FileCreated{Filename: "a.js"})
	if got := testutil.ToFloat64(streamEvents.WithLabelValues("file_created")) - before; got != 1 {
		t.Fatalf("expected 1 file_created event, got %v", got)
	}
}

func TestRelayStartedTracksActive(t *testing.T) {
	before := testutil.ToFloat64(relayActive)
	done := RelayStarted()
	if got := testutil.ToFloat64(relayActive) - before; got != 1 {
		t.Fatalf("expected active relay, got %v", got)
	}
	done("complete")
	if got := testutil.ToFloat64(relayActive) - before; got != 0 {
		t.Fatalf("expected no active relay, got %v", got)
	}
}

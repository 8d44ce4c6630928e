// Package metrics registers the Prometheus collectors shared by the gateway
// and the worker.
package metrics

import (
	"time"

	"github.com/oremus-labs/lockin/internal/stream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	streamRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lockin_stream_records_total",
		Help: "Complete event-stream records split out of agent responses",
	})

	streamEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lockin_stream_events_total",
		Help: "Decoded agent events grouped by kind",
	}, []string{"kind"})

	streamDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lockin_stream_dropped_records_total",
		Help: "Records skipped by the decoder grouped by reason",
	}, []string{"reason"})

	streamTruncated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lockin_stream_truncated_bytes_total",
		Help: "Bytes of unterminated trailing records discarded at end of stream",
	})

	relayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lockin_relay_duration_seconds",
		Help:    "Duration of relayed prompt streams",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"outcome"})

	relayActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lockin_relay_active",
		Help: "Prompt streams currently being relayed",
	})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lockin_job_duration_seconds",
		Help:    "Duration of asynchronous jobs executed by the worker",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"type", "status"})

	jobStatusTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lockin_job_status_total",
		Help: "Total jobs completed grouped by type and status",
	}, []string{"type", "status"})

	archiveTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lockin_archive_total",
		Help: "Session archive uploads grouped by outcome",
	}, []string{"status"})
)

// ObserveEvent counts one decoded event.
func ObserveEvent(ev stream.Event) {
	streamEvents.WithLabelValues(string(ev.Kind())).Inc()
}

// ObserveDecoder records end-of-stream decoder counters. Events are counted
// live through ObserveEvent.
func ObserveDecoder(stats stream.Stats) {
	streamRecords.Add(float64(stats.Records))
	for reason, n := range stats.Dropped {
		streamDropped.WithLabelValues(string(reason)).Add(float64(n))
	}
	if stats.TruncatedBytes > 0 {
		streamTruncated.Add(float64(stats.TruncatedBytes))
	}
}

// RelayStarted bumps the active relay gauge and returns the completion hook.
func RelayStarted() func(outcome string) {
	start := time.Now()
	relayActive.Inc()
	return func(outcome string) {
		relayActive.Dec()
		if outcome == "" {
			outcome = "unknown"
		}
		relayDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
}

// ObserveJobCompletion records the duration and status of a completed job.
func ObserveJobCompletion(jobType, status string, duration time.Duration) {
	if jobType == "" {
		jobType = "unknown"
	}
	if status == "" {
		status = "unknown"
	}
	jobDuration.WithLabelValues(jobType, status).Observe(duration.Seconds())
	jobStatusTotal.WithLabelValues(jobType, status).Inc()
}

// ObserveArchive records one archive upload attempt.
func ObserveArchive(success bool) {
	if success {
		archiveTotal.WithLabelValues("success").Inc()
		return
	}
	archiveTotal.WithLabelValues("failed").Inc()
}

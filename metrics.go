package knowbase

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    retrieveCounter   prometheus.Counter
//	    retrieveHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordRetrieve(n int, duration time.Duration, err error) {
//	    p.retrieveCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordUpsert is called after each upsert batch.
	// count is the number of chunks in the batch, duration is the total
	// time including embedding and persistence, err is nil on success.
	RecordUpsert(count int, duration time.Duration, err error)

	// RecordRetrieve is called after each retrieval.
	// n is the requested result count, duration is the time taken,
	// err is nil if successful.
	RecordRetrieve(n int, duration time.Duration, err error)

	// RecordEmbed is called after each embedding provider call.
	// count is the number of texts embedded.
	RecordEmbed(count int, duration time.Duration, err error)

	// RecordStrip is called for every chunk removed by the
	// post-retrieval ownership check.
	RecordStrip()

	// RecordSnapshot is called after each snapshot save.
	RecordSnapshot(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordUpsert(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordRetrieve(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordEmbed(int, time.Duration, error)    {}
func (NoopMetricsCollector) RecordStrip()                             {}
func (NoopMetricsCollector) RecordSnapshot(time.Duration, error)      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	UpsertCount        atomic.Int64
	UpsertChunks       atomic.Int64
	UpsertErrors       atomic.Int64
	UpsertTotalNanos   atomic.Int64
	RetrieveCount      atomic.Int64
	RetrieveErrors     atomic.Int64
	RetrieveTotalNanos atomic.Int64
	EmbedCount         atomic.Int64
	EmbedTexts         atomic.Int64
	EmbedErrors        atomic.Int64
	StripCount         atomic.Int64
	SnapshotCount      atomic.Int64
	SnapshotErrors     atomic.Int64
}

// RecordUpsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpsert(count int, duration time.Duration, err error) {
	b.UpsertCount.Add(1)
	b.UpsertChunks.Add(int64(count))
	b.UpsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.UpsertErrors.Add(1)
	}
}

// RecordRetrieve implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRetrieve(n int, duration time.Duration, err error) {
	b.RetrieveCount.Add(1)
	b.RetrieveTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RetrieveErrors.Add(1)
	}
}

// RecordEmbed implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEmbed(count int, duration time.Duration, err error) {
	b.EmbedCount.Add(1)
	b.EmbedTexts.Add(int64(count))
	if err != nil {
		b.EmbedErrors.Add(1)
	}
}

// RecordStrip implements MetricsCollector.
func (b *BasicMetricsCollector) RecordStrip() {
	b.StripCount.Add(1)
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(duration time.Duration, err error) {
	b.SnapshotCount.Add(1)
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		UpsertCount:       b.UpsertCount.Load(),
		UpsertChunks:      b.UpsertChunks.Load(),
		UpsertErrors:      b.UpsertErrors.Load(),
		UpsertAvgNanos:    avgNanos(b.UpsertTotalNanos.Load(), b.UpsertCount.Load()),
		RetrieveCount:     b.RetrieveCount.Load(),
		RetrieveErrors:    b.RetrieveErrors.Load(),
		RetrieveAvgNanos:  avgNanos(b.RetrieveTotalNanos.Load(), b.RetrieveCount.Load()),
		EmbedCount:        b.EmbedCount.Load(),
		EmbedTexts:        b.EmbedTexts.Load(),
		EmbedErrors:       b.EmbedErrors.Load(),
		StripCount:        b.StripCount.Load(),
		SnapshotCount:     b.SnapshotCount.Load(),
		SnapshotErrors:    b.SnapshotErrors.Load(),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	UpsertCount      int64
	UpsertChunks     int64
	UpsertErrors     int64
	UpsertAvgNanos   int64
	RetrieveCount    int64
	RetrieveErrors   int64
	RetrieveAvgNanos int64
	EmbedCount       int64
	EmbedTexts       int64
	EmbedErrors      int64
	StripCount       int64
	SnapshotCount    int64
	SnapshotErrors   int64
}

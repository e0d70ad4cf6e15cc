package docstash

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordSave is called after each save.
	// blobs is the number of arrays written to the blob store.
	RecordSave(blobs int, duration time.Duration, err error)

	// RecordLoad is called after each loaded document, or once with the
	// error that ended a load.
	RecordLoad(blobs int, duration time.Duration, err error)

	// RecordDelete is called after each delete.
	RecordDelete(blobs int, duration time.Duration, err error)

	// RecordSweep is called after each orphan sweep.
	RecordSweep(deleted int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSave(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordLoad(int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordDelete(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordSweep(int, time.Duration, error)  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SaveCount      atomic.Int64
	SaveErrors     atomic.Int64
	SaveTotalNanos atomic.Int64
	BlobsWritten   atomic.Int64
	LoadCount      atomic.Int64
	LoadErrors     atomic.Int64
	LoadTotalNanos atomic.Int64
	BlobsRead      atomic.Int64
	DeleteCount    atomic.Int64
	DeleteErrors   atomic.Int64
	BlobsDeleted   atomic.Int64
	SweepCount     atomic.Int64
	SweepErrors    atomic.Int64
	OrphansDeleted atomic.Int64
}

// RecordSave implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSave(blobs int, duration time.Duration, err error) {
	b.SaveCount.Add(1)
	b.SaveTotalNanos.Add(duration.Nanoseconds())
	b.BlobsWritten.Add(int64(blobs))
	if err != nil {
		b.SaveErrors.Add(1)
	}
}

// RecordLoad implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoad(blobs int, duration time.Duration, err error) {
	b.LoadTotalNanos.Add(duration.Nanoseconds())
	b.BlobsRead.Add(int64(blobs))
	if err != nil {
		b.LoadErrors.Add(1)
		return
	}
	b.LoadCount.Add(1)
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(blobs int, duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	b.BlobsDeleted.Add(int64(blobs))
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordSweep implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSweep(deleted int, duration time.Duration, err error) {
	b.SweepCount.Add(1)
	b.OrphansDeleted.Add(int64(deleted))
	if err != nil {
		b.SweepErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		SaveCount:      b.SaveCount.Load(),
		SaveErrors:     b.SaveErrors.Load(),
		SaveAvgNanos:   avg(b.SaveTotalNanos.Load(), b.SaveCount.Load()),
		BlobsWritten:   b.BlobsWritten.Load(),
		LoadCount:      b.LoadCount.Load(),
		LoadErrors:     b.LoadErrors.Load(),
		LoadAvgNanos:   avg(b.LoadTotalNanos.Load(), b.LoadCount.Load()+b.LoadErrors.Load()),
		BlobsRead:      b.BlobsRead.Load(),
		DeleteCount:    b.DeleteCount.Load(),
		DeleteErrors:   b.DeleteErrors.Load(),
		BlobsDeleted:   b.BlobsDeleted.Load(),
		SweepCount:     b.SweepCount.Load(),
		SweepErrors:    b.SweepErrors.Load(),
		OrphansDeleted: b.OrphansDeleted.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SaveCount      int64
	SaveErrors     int64
	SaveAvgNanos   int64
	BlobsWritten   int64
	LoadCount      int64
	LoadErrors     int64
	LoadAvgNanos   int64
	BlobsRead      int64
	DeleteCount    int64
	DeleteErrors   int64
	BlobsDeleted   int64
	SweepCount     int64
	SweepErrors    int64
	OrphansDeleted int64
}

package classdb

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// metrics/prometheus package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordClasspath is called after each classpath construction.
	// locations is the number of registered locations, indexed the number
	// of classes added to the namespace, err is nil if successful.
	RecordClasspath(locations, indexed int, duration time.Duration, err error)

	// RecordLookup is called after each class lookup.
	RecordLookup(found bool, duration time.Duration)

	// RecordClassBytes is called after each class read. cached reports a
	// class cache hit, size is the number of bytes returned.
	RecordClassBytes(cached bool, size int, duration time.Duration, err error)

	// RecordRefresh is called after each refresh cycle.
	RecordRefresh(created, deprecated int, duration time.Duration, err error)

	// RecordCleanup is called after each cleanup run with the number of
	// reclaimed records.
	RecordCleanup(removed int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordClasspath(int, int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordLookup(bool, time.Duration)                 {}
func (NoopMetricsCollector) RecordClassBytes(bool, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordRefresh(int, int, time.Duration, error)     {}
func (NoopMetricsCollector) RecordCleanup(int, time.Duration, error)          {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	ClasspathCount      atomic.Int64
	ClasspathErrors     atomic.Int64
	ClasspathTotalNanos atomic.Int64
	IndexedClasses      atomic.Int64
	LookupCount         atomic.Int64
	LookupMisses        atomic.Int64
	ClassBytesCount     atomic.Int64
	ClassBytesCached    atomic.Int64
	ClassBytesErrors    atomic.Int64
	ClassBytesRead      atomic.Int64
	RefreshCount        atomic.Int64
	RefreshErrors       atomic.Int64
	RefreshCreated      atomic.Int64
	RefreshDeprecated   atomic.Int64
	CleanupCount        atomic.Int64
	CleanupErrors       atomic.Int64
	CleanupRemoved      atomic.Int64
}

// RecordClasspath implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClasspath(_, indexed int, duration time.Duration, err error) {
	b.ClasspathCount.Add(1)
	b.ClasspathTotalNanos.Add(duration.Nanoseconds())
	b.IndexedClasses.Add(int64(indexed))
	if err != nil {
		b.ClasspathErrors.Add(1)
	}
}

// RecordLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLookup(found bool, _ time.Duration) {
	b.LookupCount.Add(1)
	if !found {
		b.LookupMisses.Add(1)
	}
}

// RecordClassBytes implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClassBytes(cached bool, size int, _ time.Duration, err error) {
	b.ClassBytesCount.Add(1)
	if err != nil {
		b.ClassBytesErrors.Add(1)
		return
	}
	if cached {
		b.ClassBytesCached.Add(1)
	}
	b.ClassBytesRead.Add(int64(size))
}

// RecordRefresh implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRefresh(created, deprecated int, _ time.Duration, err error) {
	b.RefreshCount.Add(1)
	if err != nil {
		b.RefreshErrors.Add(1)
		return
	}
	b.RefreshCreated.Add(int64(created))
	b.RefreshDeprecated.Add(int64(deprecated))
}

// RecordCleanup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCleanup(removed int, _ time.Duration, err error) {
	b.CleanupCount.Add(1)
	b.CleanupRemoved.Add(int64(removed))
	if err != nil {
		b.CleanupErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		ClasspathCount:    b.ClasspathCount.Load(),
		ClasspathErrors:   b.ClasspathErrors.Load(),
		ClasspathAvgNanos: b.getAvgClasspathNanos(),
		IndexedClasses:    b.IndexedClasses.Load(),
		LookupCount:       b.LookupCount.Load(),
		LookupMisses:      b.LookupMisses.Load(),
		ClassBytesCount:   b.ClassBytesCount.Load(),
		ClassBytesCached:  b.ClassBytesCached.Load(),
		ClassBytesErrors:  b.ClassBytesErrors.Load(),
		ClassBytesRead:    b.ClassBytesRead.Load(),
		RefreshCount:      b.RefreshCount.Load(),
		RefreshErrors:     b.RefreshErrors.Load(),
		RefreshCreated:    b.RefreshCreated.Load(),
		RefreshDeprecated: b.RefreshDeprecated.Load(),
		CleanupCount:      b.CleanupCount.Load(),
		CleanupErrors:     b.CleanupErrors.Load(),
		CleanupRemoved:    b.CleanupRemoved.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgClasspathNanos() int64 {
	count := b.ClasspathCount.Load()
	if count == 0 {
		return 0
	}
	return b.ClasspathTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	ClasspathCount    int64
	ClasspathErrors   int64
	ClasspathAvgNanos int64
	IndexedClasses    int64
	LookupCount       int64
	LookupMisses      int64
	ClassBytesCount   int64
	ClassBytesCached  int64
	ClassBytesErrors  int64
	ClassBytesRead    int64
	RefreshCount      int64
	RefreshErrors     int64
	RefreshCreated    int64
	RefreshDeprecated int64
	CleanupCount      int64
	CleanupErrors     int64
	CleanupRemoved    int64
}

package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector records classdb operations as Prometheus metrics. It implements
// classdb.MetricsCollector.
type Collector struct {
	classpaths        *prometheus.CounterVec
	classpathDuration prometheus.Histogram
	indexedClasses    prometheus.Counter
	lookups           *prometheus.CounterVec
	classReads        *prometheus.CounterVec
	classBytes        prometheus.Counter
	classReadDuration prometheus.Histogram
	refreshes         *prometheus.CounterVec
	refreshDuration   prometheus.Histogram
	refreshCreated    prometheus.Counter
	refreshDeprecated prometheus.Counter
	cleanups          *prometheus.CounterVec
	cleanupRemoved    prometheus.Counter
}

// NewCollector registers the classdb metrics with reg under namespace.
// A nil reg uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Collector{
		classpaths: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classpaths_total",
			Help:      "Total classpath constructions by result",
		}, []string{"result"}),
		classpathDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classpath_duration_seconds",
			Help:      "Classpath construction duration in seconds, including indexing",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~3s
		}),
		indexedClasses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexed_classes_total",
			Help:      "Total classes added to the namespace",
		}),
		lookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookups_total",
			Help:      "Total class lookups by result",
		}, []string{"result"}),
		classReads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "class_reads_total",
			Help:      "Total class byte reads by source",
		}, []string{"source"}),
		classBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "class_read_bytes_total",
			Help:      "Total class bytes returned",
		}),
		classReadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "class_read_duration_seconds",
			Help:      "Class read duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 14), // 10us to ~80ms
		}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Total refresh cycles by result",
		}, []string{"result"}),
		refreshDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Refresh cycle duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		}),
		refreshCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_created_records_total",
			Help:      "Total records created for changed locations",
		}),
		refreshDeprecated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_deprecated_records_total",
			Help:      "Total records superseded or vanished",
		}),
		cleanups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanups_total",
			Help:      "Total cleanup runs by result",
		}, []string{"result"}),
		cleanupRemoved: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_removed_records_total",
			Help:      "Total records reclaimed by cleanup",
		}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordClasspath implements classdb.MetricsCollector.
func (c *Collector) RecordClasspath(_, indexed int, duration time.Duration, err error) {
	c.classpaths.WithLabelValues(result(err)).Inc()
	c.classpathDuration.Observe(duration.Seconds())
	c.indexedClasses.Add(float64(indexed))
}

// RecordLookup implements classdb.MetricsCollector.
func (c *Collector) RecordLookup(found bool, _ time.Duration) {
	if found {
		c.lookups.WithLabelValues("found").Inc()
	} else {
		c.lookups.WithLabelValues("not_found").Inc()
	}
}

// RecordClassBytes implements classdb.MetricsCollector.
func (c *Collector) RecordClassBytes(cached bool, size int, duration time.Duration, err error) {
	switch {
	case err != nil:
		c.classReads.WithLabelValues("error").Inc()
		return
	case cached:
		c.classReads.WithLabelValues("cache").Inc()
	default:
		c.classReads.WithLabelValues("location").Inc()
	}
	c.classBytes.Add(float64(size))
	c.classReadDuration.Observe(duration.Seconds())
}

// RecordRefresh implements classdb.MetricsCollector.
func (c *Collector) RecordRefresh(created, deprecated int, duration time.Duration, err error) {
	c.refreshes.WithLabelValues(result(err)).Inc()
	c.refreshDuration.Observe(duration.Seconds())
	c.refreshCreated.Add(float64(created))
	c.refreshDeprecated.Add(float64(deprecated))
}

// RecordCleanup implements classdb.MetricsCollector.
func (c *Collector) RecordCleanup(removed int, _ time.Duration, err error) {
	c.cleanups.WithLabelValues(result(err)).Inc()
	c.cleanupRemoved.Add(float64(removed))
}

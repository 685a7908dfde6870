package classdb

import (
	"log/slog"
	"time"

	"github.com/hupe1980/classdb/blobstore"
	"github.com/hupe1980/classdb/feature"
	"github.com/hupe1980/classdb/persistence"
)

// DefaultClassCacheSize is the byte budget of the class cache.
const DefaultClassCacheSize = 64 << 20

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector

	persistence persistence.Persistence
	blobStore   blobstore.BlobStore
	compression persistence.Compression

	runtime         []string
	refreshInterval time.Duration
	watch           bool
	watchDebounce   time.Duration

	indexWorkers   int
	ioLimit        int64
	classCacheSize int64
	memoryLimit    int64

	handlers []namedHandler
}

type namedHandler struct {
	name    string
	handler feature.Handler
}

// Option configures Open.
type Option func(*options)

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := classdb.NewJSONLogger(slog.LevelInfo)
//	db, _ := classdb.Open(ctx, classdb.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetrics configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
func WithMetrics(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithPersistence stores records in p. The DB does not close p.
func WithPersistence(p persistence.Persistence) Option {
	return func(o *options) {
		o.persistence = p
	}
}

// WithBlobStore stores records as a copy-on-write table in store, for
// example a blobstore.LocalStore or an S3 or MinIO store. The DB does not
// close the blob store. Ignored when WithPersistence is set.
func WithBlobStore(store blobstore.BlobStore, c persistence.Compression) Option {
	return func(o *options) {
		o.blobStore = store
		o.compression = c
	}
}

// WithRuntime registers the given jmods, jars or directories as the runtime
// baseline of every classpath.
func WithRuntime(paths ...string) Option {
	return func(o *options) {
		o.runtime = append(o.runtime, paths...)
	}
}

// WithRefreshInterval refreshes all locations periodically. Zero disables
// periodic refresh.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) {
		o.refreshInterval = d
	}
}

// WithWatch refreshes as soon as a registered location changes on disk.
// debounce is the quiet period after the last change; zero selects the
// watcher default.
func WithWatch(debounce time.Duration) Option {
	return func(o *options) {
		o.watch = true
		o.watchDebounce = debounce
	}
}

// WithIndexWorkers sets how many locations are indexed concurrently.
func WithIndexWorkers(n int) Option {
	return func(o *options) {
		o.indexWorkers = n
	}
}

// WithIOLimit limits indexing and class reads to bytesPerSec.
// Zero means unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithClassCacheSize sets the byte budget of the class cache. Zero
// disables caching; without cached bytes, classes of vanished locations
// are unavailable.
func WithClassCacheSize(bytes int64) Option {
	return func(o *options) {
		o.classCacheSize = bytes
	}
}

// WithMemoryLimit bounds the memory of all caches. Zero means unlimited.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithFeature registers a handler for lifecycle signals before any
// location is registered.
func WithFeature(name string, h feature.Handler) Option {
	return func(o *options) {
		o.handlers = append(o.handlers, namedHandler{name: name, handler: h})
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
		compression:      persistence.CompressionLZ4,
		indexWorkers:     4,
		classCacheSize:   DefaultClassCacheSize,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/hupe1980/classdb"
	"github.com/hupe1980/classdb/blobstore"
	"github.com/hupe1980/classdb/blobstore/minio"
	"github.com/hupe1980/classdb/blobstore/s3"
	"github.com/hupe1980/classdb/internal/config"
	classdbprom "github.com/hupe1980/classdb/metrics/prometheus"
	"github.com/hupe1980/classdb/persistence"
	"github.com/hupe1980/classdb/persistence/badgerstore"
)

// env is the per-invocation state shared by the commands.
type env struct {
	cfg    config.Config
	logger *classdb.Logger
	db     *classdb.DB

	closers []func() error
}

// loadConfig loads the config file and applies flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if b := c.String("backend"); b != "" {
		cfg.Backend = b
	}
	if d := c.String("data-dir"); d != "" {
		cfg.DataDir = d
	}
	if l := c.String("log-level"); l != "" {
		cfg.Log.Level = l
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(cfg config.Log) (*classdb.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if cfg.Format == "json" {
		return classdb.NewJSONLogger(level), nil
	}
	return classdb.NewTextLogger(level), nil
}

// openEnv loads the configuration, opens the backend and the database.
func openEnv(c *cli.Context, extra ...classdb.Option) (*env, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger}

	runtime, err := config.Expand("", cfg.Runtime)
	if err != nil {
		return nil, err
	}

	opts := []classdb.Option{
		classdb.WithLogger(logger),
		classdb.WithRuntime(runtime...),
		classdb.WithIndexWorkers(cfg.Index.Workers),
		classdb.WithIOLimit(cfg.Index.IOLimitBytesPerSec),
		classdb.WithClassCacheSize(int64(cfg.Cache.ClassCacheMB) << 20),
		classdb.WithMemoryLimit(int64(cfg.Cache.MemoryLimitMB) << 20),
	}

	backend, err := e.openBackend(c.Context)
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	if backend != nil {
		opts = append(opts, backend)
	}

	if addr := c.String("metrics-addr"); addr != "" {
		mc, err := e.serveMetrics(addr)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
		opts = append(opts, classdb.WithMetrics(mc))
	}

	db, err := classdb.Open(c.Context, append(opts, extra...)...)
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	e.db = db
	return e, nil
}

// openBackend returns the storage option for the configured backend. The
// memory backend needs none.
func (e *env) openBackend(ctx context.Context) (classdb.Option, error) {
	cfg := e.cfg
	compression, err := persistence.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case config.BackendMemory:
		return nil, nil
	case config.BackendLocal:
		store, err := blobstore.OpenLocalStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, store.Close)
		return classdb.WithBlobStore(store, compression), nil
	case config.BackendBadger:
		bcfg := badgerstore.DefaultConfig()
		bcfg.Path = cfg.DataDir
		bcfg.Logger = e.logger.Logger
		store, err := badgerstore.Open(bcfg)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, store.Close)
		return classdb.WithPersistence(store), nil
	case config.BackendS3:
		var opts []s3.Option
		if cfg.S3.Prefix != "" {
			opts = append(opts, s3.WithPrefix(cfg.S3.Prefix))
		}
		if cfg.S3.Region != "" {
			opts = append(opts, s3.WithRegion(cfg.S3.Region))
		}
		if cfg.S3.Endpoint != "" {
			opts = append(opts, s3.WithEndpoint(cfg.S3.Endpoint))
		}
		if cfg.S3.PathStyle {
			opts = append(opts, s3.WithPathStyle())
		}
		if cfg.S3.CommitTable != "" {
			store, err := s3.NewCommitStore(ctx, cfg.S3.Bucket, cfg.S3.CommitTable, opts...)
			if err != nil {
				return nil, err
			}
			return classdb.WithBlobStore(store, compression), nil
		}
		store, err := s3.New(ctx, cfg.S3.Bucket, opts...)
		if err != nil {
			return nil, err
		}
		return classdb.WithBlobStore(store, compression), nil
	case config.BackendMinio:
		m := cfg.Minio
		store, err := minio.Connect(m.Endpoint, m.AccessKey, m.SecretKey, m.Bucket, m.Prefix, m.Secure)
		if err != nil {
			return nil, err
		}
		return classdb.WithBlobStore(store, compression), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// serveMetrics exposes a Prometheus registry on addr until the env is closed.
func (e *env) serveMetrics(addr string) (*classdbprom.Collector, error) {
	reg := prometheus.NewRegistry()
	mc := classdbprom.NewCollector(reg, "classdb")

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	e.logger.Info("serving metrics", "addr", ln.Addr().String())

	e.closers = append(e.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return mc, nil
}

// classpath expands entries, falling back to the configured classpath when
// none are given.
func (e *env) classpath(entries []string) ([]string, error) {
	if len(entries) == 0 {
		entries = e.cfg.Classpath
	}
	return config.Expand("", entries)
}

// Close closes the database before the backend it runs on.
func (e *env) Close() error {
	var errs []error
	if e.db != nil {
		errs = append(errs, e.db.Close())
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	return errors.Join(errs...)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
)

// EnvDataDir overrides Config.DataDir when set.
const EnvDataDir = "CLASSDB_DATA_DIR"

// Backends.
const (
	BackendMemory = "memory"
	BackendLocal  = "local"
	BackendBadger = "badger"
	BackendS3     = "s3"
	BackendMinio  = "minio"
)

// Config is the command configuration.
type Config struct {
	// DataDir holds the local and badger backends.
	DataDir string `toml:"data_dir"`
	// Backend is one of memory, local, badger, s3 or minio.
	Backend string `toml:"backend"`
	// Compression of the record table: none, lz4 or zstd.
	Compression string `toml:"compression"`
	// Runtime lists the runtime baseline; entries may be doublestar globs.
	Runtime []string `toml:"runtime"`
	// Classpath lists the application classpath; entries may be doublestar globs.
	Classpath []string `toml:"classpath"`

	Refresh Refresh `toml:"refresh"`
	Index   Index   `toml:"index"`
	Cache   Cache   `toml:"cache"`
	Log     Log     `toml:"log"`
	S3      S3      `toml:"s3"`
	Minio   Minio   `toml:"minio"`
}

type Refresh struct {
	IntervalMs int  `toml:"interval_ms"` // 0 disables periodic refresh
	Watch      bool `toml:"watch"`
	DebounceMs int  `toml:"debounce_ms"`
}

type Index struct {
	Workers            int   `toml:"workers"`
	IOLimitBytesPerSec int64 `toml:"io_limit_bytes_per_sec"`
}

type Cache struct {
	ClassCacheMB  int `toml:"class_cache_mb"`
	MemoryLimitMB int `toml:"memory_limit_mb"`
}

type Log struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // text, json
}

type S3 struct {
	Bucket      string `toml:"bucket"`
	Prefix      string `toml:"prefix"`
	Region      string `toml:"region"`
	Endpoint    string `toml:"endpoint"`
	PathStyle   bool   `toml:"path_style"`
	CommitTable string `toml:"commit_table"` // optional DynamoDB table
}

type Minio struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	Secure    bool   `toml:"secure"`
}

// Default returns the configuration used without a config file.
func Default() Config {
	return Config{
		DataDir:     ".classdb",
		Backend:     BackendLocal,
		Compression: "lz4",
		Index:       Index{Workers: 4},
		Cache:       Cache{ClassCacheMB: 64},
		Log:         Log{Level: "info", Format: "text"},
	}
}

// Load reads path on top of Default. An empty path yields the defaults.
// EnvDataDir overrides the data directory.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if dir := os.Getenv(EnvDataDir); dir != "" {
		cfg.DataDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendMemory:
	case BackendLocal, BackendBadger:
		if c.DataDir == "" {
			errs = append(errs, fmt.Errorf("backend %s requires data_dir", c.Backend))
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("backend s3 requires s3.bucket"))
		}
	case BackendMinio:
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
			errs = append(errs, errors.New("backend minio requires minio.endpoint and minio.bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	switch c.Compression {
	case "", "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("unknown compression %q", c.Compression))
	}

	if c.Refresh.IntervalMs < 0 || c.Refresh.DebounceMs < 0 {
		errs = append(errs, errors.New("refresh intervals must not be negative"))
	}
	if c.Index.Workers <= 0 {
		errs = append(errs, fmt.Errorf("index.workers must be positive, got %d", c.Index.Workers))
	}
	if c.Index.IOLimitBytesPerSec < 0 {
		errs = append(errs, errors.New("index.io_limit_bytes_per_sec must not be negative"))
	}
	if c.Cache.ClassCacheMB < 0 || c.Cache.MemoryLimitMB < 0 {
		errs = append(errs, errors.New("cache sizes must not be negative"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	for _, p := range slices.Concat(c.Runtime, c.Classpath) {
		if !doublestar.ValidatePathPattern(p) {
			errs = append(errs, fmt.Errorf("invalid classpath pattern %q", p))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// RefreshInterval returns the periodic refresh interval.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Refresh.IntervalMs) * time.Millisecond
}

// WatchDebounce returns the watch debounce period.
func (c *Config) WatchDebounce() time.Duration {
	return time.Duration(c.Refresh.DebounceMs) * time.Millisecond
}

// Expand resolves classpath entries. Plain paths are kept as given, globs
// are replaced by their sorted matches. Relative entries are resolved
// against base. Duplicates keep their first position.
func Expand(base string, entries []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, e := range entries {
		if !filepath.IsAbs(e) && base != "" {
			e = filepath.Join(base, e)
		}
		if !strings.ContainsAny(e, "*?[{") {
			add(filepath.Clean(e))
			continue
		}
		matches, err := doublestar.FilepathGlob(e)
		if err != nil {
			return nil, fmt.Errorf("config: expand %q: %w", e, err)
		}
		slices.Sort(matches)
		for _, m := range matches {
			add(m)
		}
	}
	return out, nil
}

package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used when Config.Debounce is zero.
const DefaultDebounce = 250 * time.Millisecond

// DefaultPatterns select the files relevant below a watched directory.
var DefaultPatterns = []string{"**/*.class", "**/*.jar", "**/*.jmod"}

// ErrClosed is returned when adding paths to a stopped watcher.
var ErrClosed = errors.New("watch: closed")

// Config configures a Watcher.
type Config struct {
	// Debounce is the quiet period before changes are reported.
	Debounce time.Duration
	// Patterns are doublestar globs matched against paths relative to a
	// watched directory. Defaults to DefaultPatterns.
	Patterns []string
	// Logger receives watch errors. Defaults to a discard logger.
	Logger *slog.Logger
}

// Watcher reports changed locations through a callback.
type Watcher struct {
	fsw      *fsnotify.Watcher
	cfg      Config
	logger   *slog.Logger
	onChange func(paths []string)

	mu    sync.Mutex
	files map[string]bool // archive roots
	dirs  map[string]bool // directory roots

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// New creates a watcher calling onChange with the sorted location roots
// that changed. onChange runs on the watcher goroutine.
func New(cfg Config, onChange func(paths []string)) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = DefaultPatterns
	}
	for _, p := range cfg.Patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("watch: invalid pattern %q", p)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		fsw:      fsw,
		cfg:      cfg,
		logger:   logger,
		onChange: onChange,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
		cancel:   cancel,
	}

	w.wg.Add(1)
	go w.run(ctx)
	return w, nil
}

// Add starts watching a location root. Paths already watched are ignored.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return ErrClosed
	}
	if w.files[abs] || w.dirs[abs] {
		return nil
	}

	if !info.IsDir() {
		if err := w.fsw.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		w.files[abs] = true
		return nil
	}

	if err := w.addTree(abs); err != nil {
		return err
	}
	w.dirs[abs] = true
	return nil
}

// Paths returns the watched location roots.
func (w *Watcher) Paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := slices.Collect(maps.Keys(w.files))
	out = append(out, slices.Collect(maps.Keys(w.dirs))...)
	slices.Sort(out)
	return out
}

// Stop stops watching and waits for the watcher goroutine. Pending changes
// are dropped.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	w.mu.Unlock()

	w.cancel()
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

// addTree watches root and every directory below it. Symlink cycles are
// skipped.
func (w *Watcher) addTree(root string) error {
	visited := make(map[string]bool)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return filepath.SkipDir
		}
		if visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true

		if err := w.fsw.Add(path); err != nil {
			if path == root {
				return fmt.Errorf("watch: %w", err)
			}
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending = make(map[string]struct{})
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			root, ok := w.match(ev)
			if !ok {
				continue
			}
			pending[root] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.cfg.Debounce)
			} else {
				timer.Reset(w.cfg.Debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)

		case <-fire:
			fire = nil
			paths := slices.Sorted(maps.Keys(pending))
			clear(pending)
			if ctx.Err() == nil {
				w.onChange(paths)
			}
		}
	}
}

// match maps an event to the location root it affects.
func (w *Watcher) match(ev fsnotify.Event) (string, bool) {
	if ev.Op == fsnotify.Chmod {
		return "", false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.files[ev.Name] {
		return ev.Name, true
	}

	for root := range w.dirs {
		rel, err := filepath.Rel(root, ev.Name)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			continue
		}

		if ev.Has(fsnotify.Create) {
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				if err := w.addTree(ev.Name); err != nil {
					w.logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
				}
				return root, true
			}
		}

		rel = filepath.ToSlash(rel)
		for _, p := range w.cfg.Patterns {
			if ok, _ := doublestar.Match(p, rel); ok {
				return root, true
			}
		}
		// A removed or renamed subdirectory carries no suffix.
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			if filepath.Ext(rel) == "" {
				return root, true
			}
		}
	}
	return "", false
}

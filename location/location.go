package location

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrInvalidLocation is returned when a path does not exist or is neither
	// a jar, a jmod nor a directory.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrClassNotFound is returned by Resolve when the location does not
	// contain the requested class.
	ErrClassNotFound = errors.New("class not found")

	// ErrContentChanged is returned when a handle's content was replaced on
	// disk after its hash was taken. The handle no longer reads anything.
	ErrContentChanged = errors.New("location content changed")
)

// Location is one unit of bytecode content contributing classes to a classpath.
// Implementations must be safe for concurrent use.
type Location interface {
	// Path identifies the underlying location.
	Path() string

	// Runtime reports whether the location belongs to the platform baseline.
	Runtime() bool

	// Hash returns the digest of the content this handle was created from.
	Hash() (string, error)

	// IsChanged reports whether the current content differs from Hash.
	// An unreadable location counts as changed.
	IsChanged() bool

	// Refreshed returns a handle for the current content.
	// It returns (nil, nil) when the underlying path no longer exists.
	Refreshed() (Location, error)

	// ClassNames lists the fully qualified names of all classes.
	ClassNames() ([]string, error)

	// Resolve returns the raw bytes of a class.
	// It returns ErrClassNotFound if the class is not part of the location.
	Resolve(className string) ([]byte, error)
}

const (
	classSuffix = ".class"
	jarSuffix   = ".jar"
	jmodSuffix  = ".jmod"
)

// FromPath returns the Location for a jar, jmod or directory.
func FromPath(path string, runtime bool) (Location, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidLocation, path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s doesn't exist", ErrInvalidLocation, abs)
	}

	switch {
	case info.IsDir():
		return NewDirectory(abs, runtime), nil
	case strings.HasSuffix(info.Name(), jarSuffix):
		return NewArchive(abs, runtime, false), nil
	case strings.HasSuffix(info.Name(), jmodSuffix):
		return NewArchive(abs, true, true), nil
	default:
		return nil, fmt.Errorf("%w: %s is neither a jar, a jmod nor a build directory", ErrInvalidLocation, abs)
	}
}

// FromPaths builds locations for all paths. It stops at the first invalid path.
func FromPaths(paths []string, runtime bool) ([]Location, error) {
	locs := make([]Location, 0, len(paths))
	for _, p := range paths {
		l, err := FromPath(p, runtime)
		if err != nil {
			return nil, err
		}
		locs = append(locs, l)
	}
	return locs, nil
}

// FilterExisting drops paths that do not exist, logging a warning for each.
func FilterExisting(paths []string, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			logger.Warn("classpath entry doesn't exist, make sure there is no mistake", "path", p)
			continue
		}
		existing = append(existing, p)
	}
	return existing
}

// classNameFromEntry converts "a/b/C.class" into "a.b.C".
func classNameFromEntry(entry string) (string, bool) {
	if !strings.HasSuffix(entry, classSuffix) {
		return "", false
	}
	name := strings.TrimSuffix(entry, classSuffix)
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.ReplaceAll(name, "/", "."), true
}

// entryFromClassName converts "a.b.C" into "a/b/C.class".
func entryFromClassName(className string) string {
	return strings.ReplaceAll(className, ".", "/") + classSuffix
}

package location

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

// Directory is a build-output folder holding .class files.
type Directory struct {
	root    string
	runtime bool

	hashOnce sync.Once
	hash     string
	files    map[string]stamp
	hashErr  error
}

// NewDirectory creates a directory location.
func NewDirectory(root string, runtime bool) *Directory {
	return &Directory{root: root, runtime: runtime}
}

func (d *Directory) Path() string  { return d.root }
func (d *Directory) Runtime() bool { return d.runtime }

// Hash returns the digest of the directory as first observed by this handle.
func (d *Directory) Hash() (string, error) {
	d.hashOnce.Do(func() {
		d.hash, d.files, d.hashErr = hashDir(d.root)
	})
	return d.hash, d.hashErr
}

// IsChanged reports whether any class file was added, removed or rewritten.
func (d *Directory) IsChanged() bool {
	h, err := d.Hash()
	if err != nil {
		return true
	}
	current, _, err := hashDir(d.root)
	if err != nil {
		return true
	}
	return current != h
}

// Refreshed returns a new handle for the directory, or nil if it was deleted.
func (d *Directory) Refreshed() (Location, error) {
	info, err := os.Stat(d.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is no longer a directory", ErrInvalidLocation, d.root)
	}
	return NewDirectory(d.root, d.runtime), nil
}

// ClassNames lists the class files of the directory. It fails with
// ErrContentChanged once the directory no longer matches Hash.
func (d *Directory) ClassNames() ([]string, error) {
	h, err := d.Hash()
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", d.root, err)
	}
	current, _, err := hashDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", d.root, err)
	}
	if current != h {
		return nil, fmt.Errorf("%w: %s", ErrContentChanged, d.root)
	}

	names := make([]string, 0, len(d.files))
	for _, rel := range slices.Sorted(maps.Keys(d.files)) {
		if name, ok := classNameFromEntry(rel); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// Resolve reads the class file for className. Only classes present when the
// hash was taken resolve; a class file rewritten since fails with
// ErrContentChanged.
func (d *Directory) Resolve(className string) ([]byte, error) {
	if _, err := d.Hash(); err != nil {
		return nil, err
	}
	rel := entryFromClassName(className)
	want, ok := d.files[rel]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrClassNotFound, className, d.root)
	}

	f, err := os.Open(filepath.Join(d.root, filepath.FromSlash(rel)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %s removed", ErrContentChanged, d.root, rel)
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if stampOf(info) != want {
		return nil, fmt.Errorf("%w: %s: %s rewritten", ErrContentChanged, d.root, rel)
	}
	return io.ReadAll(f)
}

func (d *Directory) String() string { return d.root }

package location

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"
)

// jmodMagic prefixes every jmod file; the zip payload follows it.
var jmodMagic = []byte{'J', 'M', 0x01, 0x00}

const jmodClassesDir = "classes/"

// Archive is a jar or jmod location.
type Archive struct {
	path    string
	runtime bool
	jmod    bool

	hashOnce sync.Once
	hash     string
	hashErr  error
}

// NewArchive creates an archive location. jmod selects the jmod layout
// (magic header, classes under "classes/").
func NewArchive(path string, runtime, jmod bool) *Archive {
	return &Archive{path: path, runtime: runtime, jmod: jmod}
}

func (a *Archive) Path() string  { return a.path }
func (a *Archive) Runtime() bool { return a.runtime }

// Hash returns the digest of the archive as first observed by this handle.
func (a *Archive) Hash() (string, error) {
	a.hashOnce.Do(func() {
		a.hash, a.hashErr = hashFile(a.path)
	})
	return a.hash, a.hashErr
}

// IsChanged reports whether the archive on disk differs from Hash.
func (a *Archive) IsChanged() bool {
	h, err := a.Hash()
	if err != nil {
		return true
	}
	current, err := hashFile(a.path)
	if err != nil {
		return true
	}
	return current != h
}

// Refreshed returns a new handle for the archive, or nil if it was deleted.
func (a *Archive) Refreshed() (Location, error) {
	info, err := os.Stat(a.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is no longer a file", ErrInvalidLocation, a.path)
	}
	return NewArchive(a.path, a.runtime, a.jmod), nil
}

// ClassNames lists all classes of the archive. It fails with
// ErrContentChanged once the archive no longer matches Hash.
func (a *Archive) ClassNames() ([]string, error) {
	zr, closer, err := a.open()
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		entry, ok := a.classEntry(f.Name)
		if !ok {
			continue
		}
		if name, ok := classNameFromEntry(entry); ok {
			names = append(names, name)
		}
	}
	return names, nil
}

// Resolve returns the bytes of a single class. It fails with
// ErrContentChanged once the archive no longer matches Hash.
func (a *Archive) Resolve(className string) ([]byte, error) {
	zr, closer, err := a.open()
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	entry := entryFromClassName(className)
	if a.jmod {
		entry = jmodClassesDir + entry
	}
	for _, f := range zr.File {
		if f.Name != entry {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrClassNotFound, className, a.path)
}

func (a *Archive) String() string { return a.path }

func (a *Archive) classEntry(name string) (string, bool) {
	if !a.jmod {
		return name, true
	}
	if !strings.HasPrefix(name, jmodClassesDir) {
		return "", false
	}
	return strings.TrimPrefix(name, jmodClassesDir), true
}

func (a *Archive) open() (*zip.Reader, io.Closer, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}

	// Compare against the opened file, not the path, so a rename racing
	// with this call cannot slip other content past the check.
	want, err := a.Hash()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if digestFile(a.path, info) != want {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%w: %s", ErrContentChanged, a.path)
	}

	var (
		r    io.ReaderAt = f
		size             = info.Size()
	)
	if a.jmod {
		header := make([]byte, len(jmodMagic))
		if _, err := f.ReadAt(header, 0); err != nil || !bytes.Equal(header, jmodMagic) {
			_ = f.Close()
			return nil, nil, fmt.Errorf("%w: %s is not a jmod file", ErrInvalidLocation, a.path)
		}
		off := int64(len(jmodMagic))
		r = io.NewSectionReader(f, off, size-off)
		size -= off
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("read archive %s: %w", a.path, err)
	}
	return zr, f, nil
}

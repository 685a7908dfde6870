package location

import (
	"encoding/binary"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// hashFile digests an archive by its absolute path, size and modification time.
// Archives are replaced wholesale, so this is enough to detect a new version
// without reading the content.
func hashFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	return digestFile(path, info), nil
}

func digestFile(path string, info fs.FileInfo) string {
	d := xxhash.New()
	_, _ = d.WriteString(path)
	writeStat(d, info)
	return formatDigest(d.Sum64())
}

// stamp is the size and modification time of one class file.
type stamp struct {
	size    int64
	modTime int64
}

func stampOf(info fs.FileInfo) stamp {
	return stamp{size: info.Size(), modTime: info.ModTime().UnixNano()}
}

// hashDir digests every class file of a build directory by relative path,
// size and modification time, in lexical order. It also returns the stamp of
// every class file keyed by slash-separated relative path.
func hashDir(root string) (string, map[string]stamp, error) {
	type entry struct {
		rel  string
		info fs.FileInfo
	}

	var entries []entry
	err := filepath.WalkDir(root, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() || filepath.Ext(path) != classSuffix {
			return nil
		}
		info, err := de.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, entry{rel: filepath.ToSlash(rel), info: info})
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	slices.SortFunc(entries, func(a, b entry) int {
		return strings.Compare(a.rel, b.rel)
	})

	files := make(map[string]stamp, len(entries))
	d := xxhash.New()
	_, _ = d.WriteString(root)
	for _, e := range entries {
		_, _ = d.WriteString(e.rel)
		writeStat(d, e.info)
		files[e.rel] = stampOf(e.info)
	}
	return formatDigest(d.Sum64()), files, nil
}

// hashClasses digests an in-memory class set.
func hashClasses(path string, classes map[string][]byte) string {
	names := make([]string, 0, len(classes))
	for n := range classes {
		names = append(names, n)
	}
	slices.Sort(names)

	d := xxhash.New()
	_, _ = d.WriteString(path)
	var buf [8]byte
	for _, n := range names {
		_, _ = d.WriteString(n)
		binary.LittleEndian.PutUint64(buf[:], xxhash.Sum64(classes[n]))
		_, _ = d.Write(buf[:])
	}
	return formatDigest(d.Sum64())
}

func writeStat(d *xxhash.Digest, info fs.FileInfo) {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(info.Size()))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(info.ModTime().UnixNano()))
	_, _ = d.Write(buf[:])
}

func formatDigest(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}

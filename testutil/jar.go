package testutil

import (
	"os"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
)

// WriteJar writes a jar at path containing one entry per class name.
func WriteJar(tb testing.TB, path string, classes map[string][]byte) {
	tb.Helper()

	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("create jar: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, data := range classes {
		w, err := zw.Create(strings.ReplaceAll(name, ".", "/") + ".class")
		if err != nil {
			tb.Fatalf("create entry: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			tb.Fatalf("write entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		tb.Fatalf("close jar: %v", err)
	}
}

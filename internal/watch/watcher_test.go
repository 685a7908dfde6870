package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestWatcher(t *testing.T) (*Watcher, <-chan []string) {
	t.Helper()
	ch := make(chan []string, 16)
	w, err := New(Config{Debounce: 20 * time.Millisecond}, func(paths []string) {
		ch <- paths
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })
	return w, ch
}

func receive(t *testing.T, ch <-chan []string) []string {
	t.Helper()
	select {
	case paths := <-ch:
		return paths
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
		return nil
	}
}

func TestWatcher_Archive(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "lib.jar")
	require.NoError(t, os.WriteFile(jar, []byte("v1"), 0o644))

	w, ch := newTestWatcher(t)
	require.NoError(t, w.Add(jar))
	require.NoError(t, w.Add(jar))
	assert.Equal(t, []string{jar}, w.Paths())

	require.NoError(t, os.WriteFile(jar, []byte("v2"), 0o644))
	assert.Equal(t, []string{jar}, receive(t, ch))

	require.NoError(t, os.Remove(jar))
	assert.Equal(t, []string{jar}, receive(t, ch))
}

func TestWatcher_IgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "lib.jar")
	require.NoError(t, os.WriteFile(jar, []byte("v1"), 0o644))

	w, ch := newTestWatcher(t)
	require.NoError(t, w.Add(jar))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.jar"), []byte("x"), 0o644))

	select {
	case paths := <-ch:
		t.Fatalf("unexpected change: %v", paths)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcher_Directory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a"), 0o755))

	w, ch := newTestWatcher(t)
	require.NoError(t, w.Add(root))

	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "B.class"), []byte("x"), 0o644))
	assert.Equal(t, []string{root}, receive(t, ch))

	// Files that are not class files do not count.
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "README"), []byte("x"), 0o644))
	select {
	case paths := <-ch:
		t.Fatalf("unexpected change: %v", paths)
	case <-time.After(200 * time.Millisecond):
	}

	// New subdirectories are watched as well.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "b"), 0o755))
	assert.Equal(t, []string{root}, receive(t, ch))

	require.NoError(t, os.WriteFile(filepath.Join(root, "b", "C.class"), []byte("x"), 0o644))
	assert.Equal(t, []string{root}, receive(t, ch))
}

func TestWatcher_Debounce(t *testing.T) {
	dir := t.TempDir()
	jar := filepath.Join(dir, "lib.jar")
	require.NoError(t, os.WriteFile(jar, []byte("v0"), 0o644))

	ch := make(chan []string, 16)
	w, err := New(Config{Debounce: 200 * time.Millisecond}, func(paths []string) { ch <- paths })
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()
	require.NoError(t, w.Add(jar))

	for i := range 5 {
		require.NoError(t, os.WriteFile(jar, []byte{byte(i)}, 0o644))
	}
	assert.Equal(t, []string{jar}, receive(t, ch))

	select {
	case paths := <-ch:
		t.Fatalf("burst reported twice: %v", paths)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcher_Stop(t *testing.T) {
	w, _ := newTestWatcher(t)
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
	assert.ErrorIs(t, w.Add(t.TempDir()), ErrClosed)
}

func TestWatcher_Errors(t *testing.T) {
	_, err := New(Config{Patterns: []string{"[invalid"}}, func([]string) {})
	require.Error(t, err)

	w, _ := newTestWatcher(t)
	require.Error(t, w.Add(filepath.Join(t.TempDir(), "missing.jar")))
}

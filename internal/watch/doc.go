// Package watch reports changes to classpath locations on disk.
//
// Archives are watched through their parent directory, directories
// recursively. Events are filtered by glob patterns and debounced, so a burst
// of writes (a rebuild, a copied jar) results in one notification.
package watch

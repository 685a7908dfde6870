package classdb

import (
	"errors"
)

var (
	// ErrClosed is returned when using a closed DB or Classpath.
	ErrClosed = errors.New("classdb: closed")

	// ErrLocationUnavailable is returned when the content of an indexed class
	// can no longer be read because its location vanished or changed, and
	// the class bytes are not cached.
	ErrLocationUnavailable = errors.New("classdb: location unavailable")
)

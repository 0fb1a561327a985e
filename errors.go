package bmff

import (
	"errors"

	"github.com/tetsuo/bmff/bits"
)

var (
	// ErrShortHeader is returned when fewer bytes remain than a box header needs.
	ErrShortHeader = errors.New("bmff: not enough bytes for box header")

	// ErrMalformedSize is returned when a declared box size is zero, smaller
	// than its header, or extends past the enclosing region.
	ErrMalformedSize = errors.New("bmff: malformed box size")

	// ErrContextMismatch is returned when a box that needs a specific ancestor
	// chain is found outside of it. The box is kept as an opaque node.
	ErrContextMismatch = errors.New("bmff: box outside of its required context")

	// ErrOutOfBounds is bits.ErrOutOfBounds, re-exported for callers that only
	// import this package.
	ErrOutOfBounds = bits.ErrOutOfBounds
)

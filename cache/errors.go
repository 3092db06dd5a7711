package cache

import "fmt"

// Reserved close codes. Application codes occupy a disjoint range above
// these (by convention, >= 1000), enforced nowhere in this package since
// the core treats every code as opaque beyond these three.
const (
	Cancel    uint32 = 0
	NotFound  uint32 = 404
	Duplicate uint32 = 409
)

// Closed is the error every producer/consumer pair resolves to once an
// entity (broadcast, track, or group) has ended. Code is opaque to this
// package beyond the three reserved values above.
type Closed struct {
	code uint32
}

// NewClosed wraps an application-defined close code.
func NewClosed(code uint32) *Closed {
	return &Closed{code: code}
}

// Code reports the close code.
func (c *Closed) Code() uint32 {
	if c == nil {
		return Cancel
	}
	return c.code
}

func (c *Closed) Error() string {
	switch c.Code() {
	case Cancel:
		return "cache: cancelled"
	case NotFound:
		return "cache: not found"
	case Duplicate:
		return "cache: duplicate"
	default:
		return fmt.Sprintf("cache: closed (code %d)", c.Code())
	}
}

// Predefined instances for the reserved codes, so callers can compare
// with errors.Is against a stable value.
var (
	ErrCancel    = NewClosed(Cancel)
	ErrNotFound  = NewClosed(NotFound)
	ErrDuplicate = NewClosed(Duplicate)
)

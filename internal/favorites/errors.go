package favorites

import (
	"errors"
	"fmt"
)

// ErrCorrupt is wrapped by StoreIOError when the slot holds something other
// than a JSON array of strings.
var ErrCorrupt = errors.New("favorites slot is corrupt")

// StoreIOError reports a persistence failure for the favorites slot.
type StoreIOError struct {
	Op  string // "list", "add" or "remove"
	Key string
	Err error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("favorites %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StoreIOError) Unwrap() error {
	return e.Err
}

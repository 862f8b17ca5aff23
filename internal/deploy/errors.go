package deploy

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Store.Fetch when the key does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrLogCorrupt indicates the persisted version log is not valid JSON.
	ErrLogCorrupt = errors.New("version log is corrupt")
)

// OpError records a failed remote operation together with the key or URL
// it was working on.
type OpError struct {
	Op  string // e.g. "list", "fetch", "upload", "delete", "refresh"
	Key string
	Err error
}

func (e *OpError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError wraps err with the operation and key it failed on.
func NewOpError(op, key string, err error) *OpError {
	return &OpError{Op: op, Key: key, Err: err}
}

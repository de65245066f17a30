package radio

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData means a read timed out before any byte arrived. Callers
	// polling for commands treat it as "nothing yet", not as a failure.
	ErrNoData = errors.New("radio: no data available")
	// ErrLineTooLong means a line exceeded the caller's bound; the rest of
	// it has been discarded.
	ErrLineTooLong = errors.New("radio: line exceeds maximum length")
	// ErrShortRead means the port timed out before a fixed-size read completed.
	ErrShortRead = errors.New("radio: short read")
	// ErrReadyTimeout means AUX stayed busy past the configured limit.
	ErrReadyTimeout = errors.New("radio: timed out waiting for AUX ready")
	// ErrClosed is returned by operations on a closed link.
	ErrClosed = errors.New("radio: link closed")
)

// ProtocolError reports a module reply that does not match the expected
// shape, e.g. a configuration read returning fewer than 6 bytes.
type ProtocolError struct {
	Op   string
	Want int
	Got  int
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: module replied with %d bytes, want %d", e.Op, e.Got, e.Want)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

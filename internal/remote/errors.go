package remote

import (
	"errors"
	"fmt"
)

// ErrUnauthorized marks a snapshot or plan call rejected with 401/403.
// Callers surface "not authorized" distinctly from "no plan exists" and must
// not clear an already-loaded graph because of it.
var ErrUnauthorized = errors.New("remote: not authorized")

// UnknownNodeCount is the sentinel reported upstream when an authorization
// failure hides whether a plan exists at all.
const UnknownNodeCount = -1

// TransientError is any other failed call: transport faults and non-2xx
// responses. It is reported to the user while the previous state is
// retained; the next poll tick or a manual retry may succeed without
// intervention.
type TransientError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("remote: %s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("remote: %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a recoverable remote failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

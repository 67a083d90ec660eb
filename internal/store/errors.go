package store

import "errors"

// ErrUnavailable marks failures caused by the backing database being
// unreachable, as opposed to a missing or conflicting row.
var ErrUnavailable = errors.New("database unavailable")

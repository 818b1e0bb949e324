package domain

import "errors"

// ErrUnavailable marks errors from a component that is shutting down or
// already stopped. Callers may retry against a new instance.
var ErrUnavailable = errors.New("unavailable")

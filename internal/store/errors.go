package store

import "errors"

// ErrNotFound is returned when a point operation matches no row.
var ErrNotFound = errors.New("not found")

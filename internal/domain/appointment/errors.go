package appointment

import "errors"

// ErrNotFound is returned by lookups of an unknown appointment ID.
var ErrNotFound = errors.New("appointment not found")

// ErrStore marks any failure of the persistence backend.
// Backends wrap their driver errors with it so callers can use errors.Is.
var ErrStore = errors.New("appointment store failure")

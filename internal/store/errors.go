package store

import "errors"

// ErrUnavailable is returned for transient read/write failures (busy
// connection, disk pressure) — callers may retry. Grounded on the teacher's
// storage.ErrDBNotInitialized sentinel pattern in
// internal/storage/storage.go, generalised to a transient-vs-fatal split
// per spec §7's TransientIO/StoreCorrupt distinction.
var ErrUnavailable = errors.New("store: unavailable")

// ErrCorrupt is fatal: the integrity check on startup failed, or a write
// violated an invariant the schema itself couldn't enforce.
var ErrCorrupt = errors.New("store: corrupt")

// ErrNotFound is returned by lookups that found nothing.
var ErrNotFound = errors.New("store: not found")

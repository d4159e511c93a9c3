// Package watcher turns raw filesystem notifications into settled
// ingestion candidates: a per-path debounce stage absorbs bursts of
// events, then a lock probe waits out any writer still holding the file
// before handing the path to the orchestrator.
//
// Grounded on the teacher's cmd/bd/daemon_watcher.go (fsnotify wrapping
// with a polling fallback) and the debounced-trigger pattern its
// *Debouncer field serves, also used directly in cmd/bd/daemon_event_loop.go
// (a newer trigger supersedes an in-flight one) — generalised here from a
// single fixed path to an arbitrary, concurrently-keyed set of paths under
// one watched root.
package watcher

import (
	"strings"
	"time"
)

// EventType enumerates the kinds of raw filesystem change the Watcher
// reports.
type EventType string

const (
	Created  EventType = "created"
	Modified EventType = "modified"
	Deleted  EventType = "deleted"
	Renamed  EventType = "renamed"
)

// FileEvent is one raw notification from the Watcher, before debouncing.
type FileEvent struct {
	Path       string
	OldPath    *string
	Type       EventType
	OccurredAt time.Time
}

// Candidate is a settled path ready for the ingestion orchestrator.
type Candidate struct {
	Path       string
	DetectedAt time.Time
	ReadyAt    time.Time
	IsFailed   bool
	FailReason string
}

// canonicalPath implements spec §4.7's debounce key: full path, trailing
// separator stripped, upper-cased so the same file reached via different
// casing or a trailing slash still coalesces to one debounce state.
func canonicalPath(path string) string {
	trimmed := strings.TrimRight(path, "/\\")
	return strings.ToUpper(trimmed)
}

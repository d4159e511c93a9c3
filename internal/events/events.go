// Package events implements the Event Publisher boundary (spec §4.10): a
// contract that never throws even with zero subscribers, with a null
// implementation explicitly permitted for headless hosts.
package events

import "context"

// Names of the events the engine publishes, referenced by string per
// spec §4.10's `publish(event_name, payload)` signature.
const (
	MediaAdded        = "MediaAdded"
	MetadataHarvested = "MetadataHarvested"
	DuplicateSkipped  = "DuplicateSkipped"
	AssetCorrupt      = "AssetCorrupt"
	WorkAutoLinked    = "WORK_AUTO_LINKED"
	WorkNeedsReview   = "WORK_NEEDS_REVIEW"
	WorkLinkRejected  = "WORK_LINK_REJECTED"
	ConfigChanged     = "ConfigChanged"
)

// Publisher is implemented by anything that wants ingestion notifications.
// Publish must never return an error that aborts the caller — failures are
// the publisher's problem to absorb (spec §4.10: "never throws even if
// zero subscribers").
type Publisher interface {
	Publish(ctx context.Context, eventName string, payload interface{})
}

// NoOp is the publisher explicitly permitted for headless hosts (spec
// §4.10).
type NoOp struct{}

func (NoOp) Publish(ctx context.Context, eventName string, payload interface{}) {}

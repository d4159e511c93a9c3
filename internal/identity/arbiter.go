package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/localfirst/mediaengine/internal/types"
)

// Disposition is the Arbiter's placement decision for a candidate Work.
type Disposition string

const (
	AutoLinked  Disposition = "auto_linked"
	NeedsReview Disposition = "needs_review"
	Rejected    Disposition = "rejected"
)

// Journal is the subset of Store the Arbiter needs: append one audit row.
// Kept as a narrow interface (grounded on the teacher's habit of passing a
// *sql.DB or a small store interface into package-level functions rather
// than a concrete struct) so this package stays testable without an SQLite
// file and unaware of storage details.
type Journal interface {
	LogEventWithReason(ctx context.Context, eventType, entityType, entityID, reason string) error
}

// Decision is the Arbiter's output for one Work.
type Decision struct {
	WorkID      string
	HubID       *string
	Score       float64
	Disposition Disposition
	Reason      string
	DecidedAt   time.Time
}

// Decide runs spec §4.3's Arbiter algorithm: score the candidate Work
// against every other Hub's member Works, pick the best, journal the
// outcome, and return it. The Arbiter never creates a Hub and never
// mutates a Work or Hub — placement (or leaving the Work where the Chain
// Factory put it) is the caller's job.
func Decide(ctx context.Context, journal Journal, workID string, workValues map[string]string, candidates []types.Hub, cfg Config, now time.Time) (Decision, error) {
	var bestHubID string
	var bestScore float64
	var bestReason string
	found := false

	for _, hub := range candidates {
		memberOfThisHub := false
		for _, w := range hub.Works {
			if w.ID == workID {
				memberOfThisHub = true
				break
			}
		}
		if memberOfThisHub {
			continue // circular-link guard: never compare a Work against its own Hub
		}

		hubScore := 0.0
		hubReason := ""
		for _, w := range hub.Works {
			if w.ID == workID {
				continue
			}
			otherValues := canonicalValuesToMap(w.CanonicalValues)
			result := Compare(workValues, otherValues, cfg)
			if result.Similarity > hubScore {
				hubScore = result.Similarity
				if result.Hard {
					hubReason = fmt.Sprintf("matched identifier(s): %v", result.MatchedIDs)
				} else {
					hubReason = fmt.Sprintf("fuzzy similarity %.3f", result.Similarity)
				}
			}
		}

		if !found || hubScore > bestScore {
			found = true
			bestScore = hubScore
			bestHubID = hub.ID
			bestReason = hubReason
		}
	}

	disposition := dispositionFor(bestScore, cfg)
	if !found {
		disposition = Rejected
		bestReason = "no candidate hubs to compare against"
	}

	decision := Decision{
		WorkID:      workID,
		Score:       bestScore,
		Disposition: disposition,
		Reason:      bestReason,
		DecidedAt:   now,
	}

	var eventType string
	switch disposition {
	case AutoLinked:
		decision.HubID = &bestHubID
		eventType = "WORK_AUTO_LINKED"
	case NeedsReview:
		decision.HubID = &bestHubID
		eventType = "WORK_NEEDS_REVIEW"
	default:
		eventType = "WORK_LINK_REJECTED"
	}

	if err := journal.LogEventWithReason(ctx, eventType, "work", workID, decision.Reason); err != nil {
		return Decision{}, fmt.Errorf("log arbiter decision: %w", err)
	}

	return decision, nil
}

// dispositionFor maps a best similarity score onto spec §4.3's three-way
// scale.
func dispositionFor(score float64, cfg Config) Disposition {
	switch {
	case score >= cfg.AutoLinkThreshold:
		return AutoLinked
	case score >= cfg.ConflictThreshold:
		return NeedsReview
	default:
		return Rejected
	}
}

// canonicalValuesToMap flattens a Work's scored canonical values into the
// key/value shape Compare expects.
func canonicalValuesToMap(values []types.CanonicalValue) map[string]string {
	m := make(map[string]string, len(values))
	for _, v := range values {
		m[v.Key] = v.Value
	}
	return m
}

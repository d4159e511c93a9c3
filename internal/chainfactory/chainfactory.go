// Package chainfactory materialises the Hub→Work→Edition chain a freshly
// ingested file needs before its MediaAsset row can be inserted. It is
// idempotent at the Hub level only: a Hub is reused by case-insensitive
// display name, but every call always creates a fresh Work and Edition
// (spec §4.4, §9 — no Work-level deduplication in this version).
//
// Grounded on the teacher's autoimport.go orchestration style: small,
// sequential steps against a storage interface, each error wrapped with
// what step failed.
package chainfactory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/localfirst/mediaengine/internal/store"
	"github.com/localfirst/mediaengine/internal/types"
)

const unknownDisplayName = "Unknown"

// Store is the subset of *store.Store the factory depends on.
type Store interface {
	FindHubByDisplayName(ctx context.Context, name string) (*types.Hub, error)
	CreateHub(ctx context.Context, displayName string) (*types.Hub, error)
	CreateWork(ctx context.Context, hubID string, mediaType types.MediaType, sequenceIndex *int) (*types.Work, error)
	CreateWorkWithID(ctx context.Context, id, hubID string, mediaType types.MediaType, sequenceIndex *int) (*types.Work, error)
	CreateEdition(ctx context.Context, workID string, formatLabel *string) (*types.Edition, error)
}

// Chain is the result of materialising one Hub→Work→Edition path.
type Chain struct {
	Hub     *types.Hub
	Work    *types.Work
	Edition *types.Edition
}

// Build implements spec §4.4: resolve (or create) the Hub by title, always
// create a new Work and Edition, and return the full chain so the caller
// can attach a MediaAsset to the Edition id.
func Build(ctx context.Context, s Store, mediaType types.MediaType, metadata map[string]string) (Chain, error) {
	return build(ctx, s, mediaType, metadata, "")
}

// BuildWithWorkID is Build, but the Work row is created under a
// caller-supplied id instead of a fresh one. The Ingestion Orchestrator
// (C9) uses this so the entity id it already scored claims and upserted
// canonical values against (spec §4.9 steps 5-7) is the same id the Hub's
// Work ends up with — the Store's ListHubs join and the Arbiter's
// canonical-value comparison both key off Work ids, so the pre-assigned
// entity id has to land there, not on the Edition.
func BuildWithWorkID(ctx context.Context, s Store, mediaType types.MediaType, metadata map[string]string, workID string) (Chain, error) {
	return build(ctx, s, mediaType, metadata, workID)
}

func build(ctx context.Context, s Store, mediaType types.MediaType, metadata map[string]string, workID string) (Chain, error) {
	title := strings.TrimSpace(metadata["title"])
	if title == "" {
		title = unknownDisplayName
	}

	hub, err := s.FindHubByDisplayName(ctx, title)
	if err != nil {
		if err != store.ErrNotFound {
			return Chain{}, fmt.Errorf("look up hub %q: %w", title, err)
		}
		hub, err = s.CreateHub(ctx, title)
		if err != nil {
			return Chain{}, fmt.Errorf("create hub %q: %w", title, err)
		}
	}

	var sequenceIndex *int
	if raw := strings.TrimSpace(metadata["series_index"]); raw != "" {
		if n, convErr := strconv.Atoi(raw); convErr == nil {
			sequenceIndex = &n
		}
	}

	var work *types.Work
	if workID == "" {
		work, err = s.CreateWork(ctx, hub.ID, mediaType, sequenceIndex)
	} else {
		work, err = s.CreateWorkWithID(ctx, workID, hub.ID, mediaType, sequenceIndex)
	}
	if err != nil {
		return Chain{}, fmt.Errorf("create work under hub %s: %w", hub.ID, err)
	}

	var formatLabel *string
	if raw := strings.TrimSpace(metadata["format"]); raw != "" {
		formatLabel = &raw
	}

	edition, err := s.CreateEdition(ctx, work.ID, formatLabel)
	if err != nil {
		return Chain{}, fmt.Errorf("create edition under work %s: %w", work.ID, err)
	}

	return Chain{Hub: hub, Work: work, Edition: edition}, nil
}

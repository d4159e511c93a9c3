// Package reconcile implements the engine's two out-of-band recovery
// passes: marking assets orphaned when their file has vanished from disk
// outside a watched change, and the "Great Inhale" full rebuild that walks
// every sidecar descriptor under a data root and replays it back into the
// catalogue. Neither pass runs during normal ingestion: both run from the
// `inhale` CLI subcommand, and ReconcileOrphans also runs when `run` shuts
// down.
//
// Grounded on the teacher's internal/autoimport.go style: small sequential
// steps against a storage interface, logged through the same Notifier
// every other component depends on, continuing past a single item's
// failure rather than aborting the whole pass.
package reconcile

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/localfirst/mediaengine/internal/logging"
	"github.com/localfirst/mediaengine/internal/organiser"
	"github.com/localfirst/mediaengine/internal/types"
)

// Store is the subset of *store.Store the reconciler depends on.
type Store interface {
	AllAssetPaths(ctx context.Context) (map[string]string, error)
	SetAssetStatus(ctx context.Context, assetID string, status types.AssetStatus) error
	FindAssetByHash(ctx context.Context, hexHash string) (*types.MediaAsset, error)
	InsertAsset(ctx context.Context, asset *types.MediaAsset) (types.InsertResult, error)
	AppendClaim(ctx context.Context, claim *types.MetadataClaim) error
	UpsertCanonical(ctx context.Context, entityID, key, value string, ts time.Time) error
	FindHubByDisplayName(ctx context.Context, name string) (*types.Hub, error)
	CreateHub(ctx context.Context, displayName string) (*types.Hub, error)
	CreateWorkWithID(ctx context.Context, id, hubID string, mediaType types.MediaType, sequenceIndex *int) (*types.Work, error)
	CreateEdition(ctx context.Context, workID string, formatLabel *string) (*types.Edition, error)
}

// OrphanResult reports how many of the catalogue's known assets were
// checked and how many no longer exist on disk.
type OrphanResult struct {
	Checked  int
	Orphaned int
}

// ReconcileOrphans walks every non-orphaned asset the catalogue knows
// about and flips any whose file_path_root no longer exists to Orphaned
// status (spec §9's open question on orphan detection, resolved here as an
// explicit maintenance pass rather than a watcher-driven one, since a
// delete event arriving while the engine is stopped would otherwise never
// surface). A single stat failure other than "not exist" is logged and
// skipped rather than aborting the pass.
func ReconcileOrphans(ctx context.Context, s Store, notifier logging.Notifier) (OrphanResult, error) {
	if notifier == nil {
		notifier = logging.NoOp{}
	}

	paths, err := s.AllAssetPaths(ctx)
	if err != nil {
		return OrphanResult{}, fmt.Errorf("list asset paths: %w", err)
	}

	result := OrphanResult{Checked: len(paths)}
	for assetID, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		_, statErr := os.Stat(path)
		if statErr == nil {
			continue
		}
		if !os.IsNotExist(statErr) {
			notifier.Warnf("orphan check skipped for asset %s at %s: %v", assetID, path, statErr)
			continue
		}
		if err := s.SetAssetStatus(ctx, assetID, types.AssetOrphaned); err != nil {
			notifier.Warnf("mark orphaned failed for asset %s: %v", assetID, err)
			continue
		}
		notifier.Infof("asset %s orphaned: %s no longer on disk", assetID, path)
		result.Orphaned++
	}
	return result, nil
}

// InhaleResult reports what the Great Inhale rebuilt.
type InhaleResult struct {
	SidecarsVisited int
	AssetsRestored  int
	AssetsSkipped   int
}

// Inhale implements the "Great Inhale" disaster-recovery rebuild (spec
// §6): walk every sidecar descriptor under dataRoot and, for any whose
// content hash isn't already in the catalogue, recreate the Hub/Work/
// Edition chain and replay its recorded claims and canonical values. A
// media file whose sidecar references a hash the catalogue already has is
// left alone — Inhale only fills gaps, it never overwrites a live asset.
func Inhale(ctx context.Context, s Store, dataRoot string, notifier logging.Notifier) (InhaleResult, error) {
	if notifier == nil {
		notifier = logging.NoOp{}
	}

	var result InhaleResult
	walkErr := organiser.WalkSidecars(dataRoot, func(sidecarPath string, sc organiser.Sidecar) error {
		result.SidecarsVisited++
		if err := ctx.Err(); err != nil {
			return err
		}

		mediaPath := mediaPathFromSidecar(sidecarPath)
		if _, err := s.FindAssetByHash(ctx, sc.ContentHash); err == nil {
			result.AssetsSkipped++
			return nil
		}

		hub, err := s.FindHubByDisplayName(ctx, sc.HubName)
		if err != nil {
			hub, err = s.CreateHub(ctx, sc.HubName)
			if err != nil {
				notifier.Warnf("inhale: create hub %q failed: %v", sc.HubName, err)
				result.AssetsSkipped++
				return nil
			}
		}

		workID := sc.EntityID
		if workID == "" {
			notifier.Warnf("inhale: sidecar %s has no entity id, skipping", sidecarPath)
			result.AssetsSkipped++
			return nil
		}
		work, err := s.CreateWorkWithID(ctx, workID, hub.ID, types.MediaType(sc.MediaType), nil)
		if err != nil {
			notifier.Warnf("inhale: recreate work %s failed: %v", workID, err)
			result.AssetsSkipped++
			return nil
		}

		var formatLabel *string
		if sc.FormatLabel != "" {
			formatLabel = &sc.FormatLabel
		}
		edition, err := s.CreateEdition(ctx, work.ID, formatLabel)
		if err != nil {
			notifier.Warnf("inhale: recreate edition for work %s failed: %v", work.ID, err)
			result.AssetsSkipped++
			return nil
		}

		for _, claim := range sc.Claims {
			claimedAt, parseErr := time.Parse(time.RFC3339, claim.ClaimedAt)
			if parseErr != nil {
				claimedAt = time.Now().UTC()
			}
			mc := &types.MetadataClaim{
				EntityID:     work.ID,
				EntityType:   claim.EntityType,
				ProviderID:   claim.ProviderID,
				ClaimKey:     claim.Key,
				ClaimValue:   claim.Value,
				Confidence:   claim.Confidence,
				ClaimedAt:    claimedAt,
				IsUserLocked: claim.IsUserLocked,
			}
			if err := s.AppendClaim(ctx, mc); err != nil {
				notifier.Warnf("inhale: replay claim %s for work %s failed: %v", claim.Key, work.ID, err)
			}
		}

		now := time.Now().UTC()
		for _, cv := range sc.Canonical {
			if err := s.UpsertCanonical(ctx, work.ID, cv.Key, cv.Value, now); err != nil {
				notifier.Warnf("inhale: replay canonical %s for work %s failed: %v", cv.Key, work.ID, err)
			}
		}

		asset := &types.MediaAsset{
			EditionID:    edition.ID,
			ContentHash:  sc.ContentHash,
			FilePathRoot: mediaPath,
			Status:       types.AssetNormal,
		}
		if _, err := s.InsertAsset(ctx, asset); err != nil {
			notifier.Warnf("inhale: reinsert asset for %s failed: %v", mediaPath, err)
			result.AssetsSkipped++
			return nil
		}

		result.AssetsRestored++
		notifier.Infof("inhale: restored %s under hub %q", mediaPath, sc.HubName)
		return nil
	})
	if walkErr != nil {
		return result, fmt.Errorf("walk sidecars under %s: %w", dataRoot, walkErr)
	}
	return result, nil
}

// mediaPathFromSidecar strips the sidecar suffix to recover the media
// file's own path.
func mediaPathFromSidecar(sidecarPath string) string {
	const suffix = organiser.SidecarSuffix
	if len(sidecarPath) > len(suffix) && sidecarPath[len(sidecarPath)-len(suffix):] == suffix {
		return sidecarPath[:len(sidecarPath)-len(suffix)]
	}
	return sidecarPath
}

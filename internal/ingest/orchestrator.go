// Package ingest implements the Ingestion Orchestrator (spec §4.9): the
// only component that synchronously drives a single candidate from a
// settled filesystem path through hashing, processing, scoring, chain
// materialisation, storage and organisation.
//
// Grounded on the teacher's internal/autoimport.AutoImportIfNewer: a
// sequential, notifier-logged pipeline over a storage interface, each step
// wrapped with what failed, changes published through a callback rather
// than returned to a caller who isn't there to receive it (the watcher
// that produced this candidate has already moved on).
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/localfirst/mediaengine/internal/chainfactory"
	"github.com/localfirst/mediaengine/internal/events"
	"github.com/localfirst/mediaengine/internal/hasher"
	"github.com/localfirst/mediaengine/internal/identity"
	"github.com/localfirst/mediaengine/internal/logging"
	"github.com/localfirst/mediaengine/internal/organiser"
	"github.com/localfirst/mediaengine/internal/processor"
	"github.com/localfirst/mediaengine/internal/scoring"
	"github.com/localfirst/mediaengine/internal/store"
	"github.com/localfirst/mediaengine/internal/types"
	"github.com/localfirst/mediaengine/internal/watcher"
)

// LocalProviderID is the provider_id stamped on every claim the Processor
// Registry extracts directly from a file's own embedded metadata, as
// opposed to an external metadata provider enqueuing claims through the
// same AppendClaim interface (spec §1: external providers are reached
// only through "the same interface a local processor uses").
const LocalProviderID = "filesystem"

// Store is the subset of *store.Store the orchestrator depends on. It is
// a superset of chainfactory.Store so a *store.Store satisfies both with
// no adapter.
type Store interface {
	FindAssetByHash(ctx context.Context, hexHash string) (*types.MediaAsset, error)
	InsertAsset(ctx context.Context, asset *types.MediaAsset) (types.InsertResult, error)
	UpdateAssetPath(ctx context.Context, assetID, newPath string) error
	SetAssetStatus(ctx context.Context, assetID string, status types.AssetStatus) error
	AppendClaim(ctx context.Context, claim *types.MetadataClaim) error
	ListClaims(ctx context.Context, entityID string) ([]types.MetadataClaim, error)
	UpsertCanonical(ctx context.Context, entityID, key, value string, ts time.Time) error
	ListHubs(ctx context.Context) ([]types.Hub, error)
	LogEvent(ctx context.Context, eventType, entityType, entityID string) error
	LogEventWithReason(ctx context.Context, eventType, entityType, entityID, reason string) error

	FindHubByDisplayName(ctx context.Context, name string) (*types.Hub, error)
	CreateHub(ctx context.Context, displayName string) (*types.Hub, error)
	CreateWork(ctx context.Context, hubID string, mediaType types.MediaType, sequenceIndex *int) (*types.Work, error)
	CreateWorkWithID(ctx context.Context, id, hubID string, mediaType types.MediaType, sequenceIndex *int) (*types.Work, error)
	CreateEdition(ctx context.Context, workID string, formatLabel *string) (*types.Edition, error)
}

// Enricher is the external background-enrichment collaborator spec §4.9
// step 11 names: it may contribute additional claims for an entity
// asynchronously. A failure here must never fail the ingestion it was
// enqueued from.
type Enricher interface {
	Enrich(ctx context.Context, entityID string, claims map[string]string)
}

// EnricherFunc adapts a plain function into an Enricher.
type EnricherFunc func(ctx context.Context, entityID string, claims map[string]string)

func (f EnricherFunc) Enrich(ctx context.Context, entityID string, claims map[string]string) {
	f(ctx, entityID, claims)
}

// Config holds the orchestrator's tunables, combining the Scoring Engine
// and Identity Matcher/Arbiter configs it drives plus the ingest-specific
// knobs spec §4.9/§6 name.
type Config struct {
	Scoring              scoring.Config
	Identity             identity.Config
	QuarantineDir        string
	ProviderWeights      map[string]float64
	ProviderFieldWeights map[string]map[string]float64
}

// DefaultConfig builds a Config with spec-default scoring/identity
// thresholds and the local filesystem provider at weight 1.0.
func DefaultConfig(quarantineDir string) Config {
	return Config{
		Scoring:       scoring.DefaultConfig(),
		Identity:      identity.DefaultConfig(),
		QuarantineDir: quarantineDir,
		ProviderWeights: map[string]float64{
			LocalProviderID: 1.0,
		},
	}
}

// Orchestrator drives candidates from watcher.Queue's output channel
// through the full ingestion pipeline (spec §4.9).
type Orchestrator struct {
	Store     Store
	Registry  *processor.Registry
	Publisher events.Publisher
	Organiser *organiser.Organiser
	Notifier  logging.Notifier
	Metrics   *Metrics
	Enricher  Enricher
	Config    Config

	// Clock is overridable for deterministic tests; defaults to time.Now.
	Clock func() time.Time
}

func (o *Orchestrator) now() time.Time {
	if o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}

func (o *Orchestrator) notifier() logging.Notifier {
	if o.Notifier != nil {
		return o.Notifier
	}
	return logging.NoOp{}
}

func (o *Orchestrator) publisher() events.Publisher {
	if o.Publisher != nil {
		return o.Publisher
	}
	return events.NoOp{}
}

// Run drains candidates from queue until it closes or ctx is cancelled,
// processing each one synchronously in the calling goroutine. For
// concurrent processing, cmd/mediaengine/run.go instead hands each
// candidate to a worker.Worker whose handler calls ProcessCandidate.
func (o *Orchestrator) Run(ctx context.Context, queue <-chan watcher.Candidate) {
	for {
		select {
		case c, ok := <-queue:
			if !ok {
				return
			}
			o.ProcessCandidate(ctx, c)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessCandidate drives spec §4.9's twelve-step pipeline for one
// settled candidate. It never panics or returns an error to the caller:
// every failure is logged, published, and/or counted, matching the
// "failures inside a single candidate do not affect other candidates"
// contract (spec §5, §7).
func (o *Orchestrator) ProcessCandidate(ctx context.Context, c watcher.Candidate) {
	if o.Metrics != nil {
		o.Metrics.CandidatesProcessed.Inc()
	}

	// Step 1: failed probe or vanished file.
	if c.IsFailed {
		o.fail(ctx, c.Path, "lock probe exhausted: "+c.FailReason)
		return
	}
	if _, err := os.Stat(c.Path); err != nil {
		o.fail(ctx, c.Path, fmt.Sprintf("file missing at ingest time: %v", err))
		return
	}

	// Step 2: content hash.
	hashResult, err := hasher.Hash(ctx, c.Path)
	if err != nil {
		o.fail(ctx, c.Path, fmt.Sprintf("hash failed: %v", err))
		return
	}

	// Step 3: duplicate check.
	existing, err := o.Store.FindAssetByHash(ctx, hashResult.HexDigest)
	if err != nil && err != store.ErrNotFound {
		o.fail(ctx, c.Path, fmt.Sprintf("duplicate lookup failed: %v", err))
		return
	}
	if existing != nil {
		o.notifier().Infof("duplicate content hash %s for %s, skipping", hashResult.HexDigest, c.Path)
		if o.Metrics != nil {
			o.Metrics.DuplicatesSkipped.Inc()
		}
		o.publisher().Publish(ctx, events.DuplicateSkipped, map[string]string{"path": c.Path, "content_hash": hashResult.HexDigest})
		return
	}

	// Step 4: process / extract claims.
	result, err := o.Registry.Process(ctx, c.Path)
	if err != nil {
		o.fail(ctx, c.Path, fmt.Sprintf("processing failed: %v", err))
		return
	}
	if result.IsCorrupt {
		o.quarantine(ctx, c.Path, result.CorruptReason)
		return
	}

	// Step 5: append claims under a pre-assigned entity id. Scoped to
	// "work" per spec §9's entity_type discriminator: the Work is what
	// ListHubs and the Arbiter later read canonical values from, so the
	// pre-assigned id becomes the Work's id (see chainfactory.BuildWithWorkID).
	entityID := uuid.NewString()
	now := o.now()
	for _, claim := range result.Claims {
		mc := &types.MetadataClaim{
			EntityID:   entityID,
			EntityType: "work",
			ProviderID: LocalProviderID,
			ClaimKey:   claim.Key,
			ClaimValue: claim.Value,
			Confidence: claim.Confidence,
			ClaimedAt:  now,
		}
		if err := o.Store.AppendClaim(ctx, mc); err != nil {
			o.fail(ctx, c.Path, fmt.Sprintf("append claim %s failed: %v", claim.Key, err))
			return
		}
	}

	claims, err := o.Store.ListClaims(ctx, entityID)
	if err != nil {
		o.fail(ctx, c.Path, fmt.Sprintf("list claims failed: %v", err))
		return
	}

	// Step 6: score.
	scored := scoring.Score(scoring.Context{
		EntityID:             entityID,
		Claims:               claims,
		ProviderWeights:      o.Config.ProviderWeights,
		ProviderFieldWeights: o.Config.ProviderFieldWeights,
		Config:               o.Config.Scoring,
		Now:                  now,
	})

	metadata := make(map[string]string, len(scored.FieldScores))
	anyConflict := false
	for _, fs := range scored.FieldScores {
		metadata[fs.Key] = fs.Value
		if fs.Conflicted {
			anyConflict = true
			if o.Metrics != nil {
				o.Metrics.ConflictsFlagged.Inc()
			}
		}
	}

	// Step 7: upsert canonical values.
	for _, fs := range scored.FieldScores {
		if err := o.Store.UpsertCanonical(ctx, entityID, fs.Key, fs.Value, scored.ScoredAt); err != nil {
			o.fail(ctx, c.Path, fmt.Sprintf("upsert canonical %s failed: %v", fs.Key, err))
			return
		}
	}

	// Step 8: materialise the Hub→Work→Edition chain.
	mediaType := detectMediaType(result.DetectedType)
	chain, err := chainfactory.BuildWithWorkID(ctx, o.Store, mediaType, metadata, entityID)
	if err != nil {
		o.fail(ctx, c.Path, fmt.Sprintf("chain factory failed: %v", err))
		return
	}

	// Step 8b: run the Arbiter for audit purposes. It never mutates
	// anything (spec §4.3); a disposition pointing at a different Hub
	// than the one the Chain Factory's exact-title lookup chose surfaces
	// as a journal entry and an event for a human or a future merge tool
	// to act on (spec §8 scenario 6, §9 "Work/Edition proliferation").
	hubs, err := o.Store.ListHubs(ctx)
	if err != nil {
		o.notifier().Warnf("arbiter hub lookup failed for %s: %v", entityID, err)
	} else {
		decision, err := identity.Decide(ctx, o.Store, entityID, metadata, hubs, o.Config.Identity, now)
		if err != nil {
			o.notifier().Warnf("arbiter decision failed for %s: %v", entityID, err)
		} else {
			o.publishArbiterDecision(ctx, decision, chain.Hub.ID)
		}
	}

	// Step 9: insert the asset.
	asset := &types.MediaAsset{
		EditionID:    chain.Edition.ID,
		ContentHash:  hashResult.HexDigest,
		FilePathRoot: c.Path,
		Status:       types.AssetNormal,
	}
	if anyConflict {
		asset.Status = types.AssetConflicted
	}
	insertResult, err := o.Store.InsertAsset(ctx, asset)
	if err != nil {
		o.fail(ctx, c.Path, fmt.Sprintf("insert asset failed: %v", err))
		return
	}
	if insertResult == types.DuplicateHash {
		// Lost a race against a concurrent ingestion of the same file.
		if o.Metrics != nil {
			o.Metrics.DuplicatesSkipped.Inc()
		}
		o.publisher().Publish(ctx, events.DuplicateSkipped, map[string]string{"path": c.Path, "content_hash": hashResult.HexDigest})
		return
	}

	// Step 10: auto-organisation.
	anyUserLocked := false
	for _, cl := range claims {
		if cl.IsUserLocked {
			anyUserLocked = true
			break
		}
	}
	if scored.OverallConfidence >= o.Config.Scoring.AutoLinkThreshold || anyUserLocked {
		o.organise(ctx, c.Path, asset, chain, result, metadata, claims, scored)
	}

	// Step 11: enqueue background enrichment. A nil Enricher is a valid
	// headless configuration (spec §1: external providers are an
	// out-of-scope collaborator).
	if o.Enricher != nil {
		o.Enricher.Enrich(ctx, entityID, metadata)
	}

	// Step 12: publish lifecycle events.
	o.publisher().Publish(ctx, events.MediaAdded, map[string]interface{}{
		"asset_id":   asset.ID,
		"hub_id":     chain.Hub.ID,
		"work_id":    chain.Work.ID,
		"edition_id": chain.Edition.ID,
		"path":       asset.FilePathRoot,
	})
	o.publisher().Publish(ctx, events.MetadataHarvested, map[string]interface{}{
		"work_id":            entityID,
		"overall_confidence": scored.OverallConfidence,
		"field_count":        len(scored.FieldScores),
	})
}

func (o *Orchestrator) publishArbiterDecision(ctx context.Context, decision identity.Decision, ownHubID string) {
	var eventName string
	switch decision.Disposition {
	case identity.AutoLinked:
		eventName = events.WorkAutoLinked
	case identity.NeedsReview:
		eventName = events.WorkNeedsReview
	default:
		eventName = events.WorkLinkRejected
	}
	if decision.HubID != nil && *decision.HubID == ownHubID {
		// Matches the Hub the Chain Factory already placed it under;
		// nothing actionable for a human reviewer.
		return
	}
	o.publisher().Publish(ctx, eventName, map[string]interface{}{
		"work_id": decision.WorkID,
		"hub_id":  decision.HubID,
		"score":   decision.Score,
		"reason":  decision.Reason,
	})
}

func (o *Orchestrator) organise(ctx context.Context, sourcePath string, asset *types.MediaAsset, chain chainfactory.Chain, result processor.Result, metadata map[string]string, claims []types.MetadataClaim, scored scoring.Result) {
	format := metadata["format"]
	if format == "" {
		format = string(chain.Work.MediaType)
	}
	placement := organiser.Placement{
		SourcePath: sourcePath,
		Category:   titleCase(string(chain.Work.MediaType)),
		HubName:    chain.Hub.DisplayName,
		Year:       metadata["year"],
		Format:     titleCase(format),
		EditionTag: shortID(chain.Edition.ID),
		Ext:        filepath.Ext(sourcePath),
	}
	res, err := o.Organiser.Organise(ctx, placement)
	if err != nil {
		o.notifier().Warnf("organise failed for %s: %v", sourcePath, err)
		return
	}
	if o.Metrics != nil {
		o.Metrics.Organised.Inc()
	}

	if err := o.Store.UpdateAssetPath(ctx, asset.ID, res.DestPath); err != nil {
		o.notifier().Warnf("update asset path after organise failed for %s: %v", asset.ID, err)
	}
	asset.FilePathRoot = res.DestPath

	if err := organiser.WriteCover(res.DestPath, result.CoverBytes, result.CoverMIME); err != nil {
		o.notifier().Warnf("write cover failed for %s: %v", res.DestPath, err)
	}

	sidecar := buildSidecar(asset, chain, claims, scored)
	if err := organiser.WriteSidecar(res.DestPath, sidecar); err != nil {
		o.notifier().Warnf("write sidecar failed for %s: %v", res.DestPath, err)
	}
}

func buildSidecar(asset *types.MediaAsset, chain chainfactory.Chain, claims []types.MetadataClaim, scored scoring.Result) organiser.Sidecar {
	sc := organiser.Sidecar{
		SchemaVersion: 1,
		ContentHash:   asset.ContentHash,
		HubName:       chain.Hub.DisplayName,
		MediaType:     string(chain.Work.MediaType),
		EntityID:      chain.Work.ID,
		WrittenAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if chain.Edition.FormatLabel != nil {
		sc.FormatLabel = *chain.Edition.FormatLabel
	}
	for _, c := range claims {
		sc.Claims = append(sc.Claims, organiser.SidecarClaim{
			EntityType:   c.EntityType,
			ProviderID:   c.ProviderID,
			Key:          c.ClaimKey,
			Value:        c.ClaimValue,
			Confidence:   c.Confidence,
			ClaimedAt:    c.ClaimedAt.UTC().Format(time.RFC3339),
			IsUserLocked: c.IsUserLocked,
		})
	}
	for _, fs := range scored.FieldScores {
		sc.Canonical = append(sc.Canonical, organiser.SidecarCanonical{Key: fs.Key, Value: fs.Value})
	}
	return sc
}

func (o *Orchestrator) quarantine(ctx context.Context, path, reason string) {
	o.notifier().Warnf("quarantining corrupt file %s: %s", path, reason)
	if o.Metrics != nil {
		o.Metrics.Quarantined.Inc()
	}
	dest, err := organiser.Quarantine(o.Config.QuarantineDir, path)
	if err != nil {
		o.notifier().Errorf("quarantine move failed for %s: %v", path, err)
	}
	if err := o.Store.LogEvent(ctx, "ASSET_CORRUPT", "asset", path); err != nil {
		o.notifier().Warnf("log corrupt event failed for %s: %v", path, err)
	}
	o.publisher().Publish(ctx, events.AssetCorrupt, map[string]string{"path": path, "quarantined_to": dest, "reason": reason})
}

func (o *Orchestrator) fail(ctx context.Context, path, reason string) {
	o.notifier().Warnf("ingestion failed for %s: %s", path, reason)
	if o.Metrics != nil {
		o.Metrics.Failed.Inc()
	}
	if err := o.Store.LogEvent(ctx, "INGEST_FAILED", "asset", path); err != nil {
		o.notifier().Warnf("log ingest-failure event failed for %s: %v", path, err)
	}
}

// detectMediaType maps a processor's free-form DetectedType string onto
// the fixed types.MediaType enum, defaulting to Unknown for anything a
// format handler reports that this engine doesn't recognise.
func detectMediaType(detected string) types.MediaType {
	switch strings.ToLower(detected) {
	case "movie":
		return types.MediaMovie
	case "epub":
		return types.MediaEpub
	case "audiobook":
		return types.MediaAudiobook
	case "comic":
		return types.MediaComic
	case "tvshow", "tv_show", "tv":
		return types.MediaTvShow
	case "podcast":
		return types.MediaPodcast
	case "music":
		return types.MediaMusic
	default:
		return types.MediaUnknown
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

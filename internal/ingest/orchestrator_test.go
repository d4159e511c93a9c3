package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/localfirst/mediaengine/internal/events"
	"github.com/localfirst/mediaengine/internal/organiser"
	"github.com/localfirst/mediaengine/internal/processor"
	"github.com/localfirst/mediaengine/internal/store"
	"github.com/localfirst/mediaengine/internal/types"
	"github.com/localfirst/mediaengine/internal/watcher"
)

// fakeStore is an in-memory stand-in for *store.Store, grounded on the same
// fake-store style chainfactory_test.go uses: plain maps, no SQL, enough
// behavior to exercise the orchestrator's branches.
type fakeStore struct {
	assetsByHash map[string]*types.MediaAsset
	assets       map[string]*types.MediaAsset
	claims       map[string][]types.MetadataClaim
	canonical    map[string]map[string]types.CanonicalValue
	hubsByNorm   map[string]*types.Hub
	worksByID    map[string]*types.Work
	events       []string
	nextID       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		assetsByHash: make(map[string]*types.MediaAsset),
		assets:       make(map[string]*types.MediaAsset),
		claims:       make(map[string][]types.MetadataClaim),
		canonical:    make(map[string]map[string]types.CanonicalValue),
		hubsByNorm:   make(map[string]*types.Hub),
		worksByID:    make(map[string]*types.Work),
	}
}

func (f *fakeStore) newID(prefix string) string {
	f.nextID++
	return prefix + "-" + strings.Repeat("x", f.nextID)
}

func (f *fakeStore) FindAssetByHash(ctx context.Context, hexHash string) (*types.MediaAsset, error) {
	a, ok := f.assetsByHash[hexHash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) InsertAsset(ctx context.Context, asset *types.MediaAsset) (types.InsertResult, error) {
	if _, ok := f.assetsByHash[asset.ContentHash]; ok {
		return types.DuplicateHash, nil
	}
	if asset.ID == "" {
		asset.ID = f.newID("asset")
	}
	f.assetsByHash[asset.ContentHash] = asset
	f.assets[asset.ID] = asset
	return types.Inserted, nil
}

func (f *fakeStore) UpdateAssetPath(ctx context.Context, assetID, newPath string) error {
	if a, ok := f.assets[assetID]; ok {
		a.FilePathRoot = newPath
	}
	return nil
}

func (f *fakeStore) SetAssetStatus(ctx context.Context, assetID string, status types.AssetStatus) error {
	if a, ok := f.assets[assetID]; ok {
		a.Status = status
	}
	return nil
}

func (f *fakeStore) AppendClaim(ctx context.Context, claim *types.MetadataClaim) error {
	if claim.ID == "" {
		claim.ID = f.newID("claim")
	}
	f.claims[claim.EntityID] = append(f.claims[claim.EntityID], *claim)
	return nil
}

func (f *fakeStore) ListClaims(ctx context.Context, entityID string) ([]types.MetadataClaim, error) {
	return f.claims[entityID], nil
}

func (f *fakeStore) UpsertCanonical(ctx context.Context, entityID, key, value string, ts time.Time) error {
	if f.canonical[entityID] == nil {
		f.canonical[entityID] = make(map[string]types.CanonicalValue)
	}
	f.canonical[entityID][key] = types.CanonicalValue{EntityID: entityID, Key: key, Value: value, LastScoredAt: ts}
	return nil
}

func (f *fakeStore) ListHubs(ctx context.Context) ([]types.Hub, error) {
	var hubs []types.Hub
	for _, h := range f.hubsByNorm {
		hub := *h
		for _, w := range f.worksByID {
			if w.HubID != nil && *w.HubID == h.ID {
				wc := *w
				for _, cv := range f.canonical[w.ID] {
					wc.CanonicalValues = append(wc.CanonicalValues, cv)
				}
				hub.Works = append(hub.Works, wc)
			}
		}
		hubs = append(hubs, hub)
	}
	return hubs, nil
}

func (f *fakeStore) LogEvent(ctx context.Context, eventType, entityType, entityID string) error {
	return f.LogEventWithReason(ctx, eventType, entityType, entityID, "")
}

func (f *fakeStore) LogEventWithReason(ctx context.Context, eventType, entityType, entityID, reason string) error {
	f.events = append(f.events, eventType)
	return nil
}

func (f *fakeStore) FindHubByDisplayName(ctx context.Context, name string) (*types.Hub, error) {
	norm := strings.ToLower(strings.TrimSpace(name))
	h, ok := f.hubsByNorm[norm]
	if !ok {
		return nil, store.ErrNotFound
	}
	return h, nil
}

func (f *fakeStore) CreateHub(ctx context.Context, displayName string) (*types.Hub, error) {
	h := &types.Hub{ID: f.newID("hub"), DisplayName: displayName}
	f.hubsByNorm[strings.ToLower(strings.TrimSpace(displayName))] = h
	return h, nil
}

func (f *fakeStore) CreateWork(ctx context.Context, hubID string, mediaType types.MediaType, sequenceIndex *int) (*types.Work, error) {
	return f.CreateWorkWithID(ctx, f.newID("work"), hubID, mediaType, sequenceIndex)
}

func (f *fakeStore) CreateWorkWithID(ctx context.Context, id, hubID string, mediaType types.MediaType, sequenceIndex *int) (*types.Work, error) {
	w := &types.Work{ID: id, HubID: &hubID, MediaType: mediaType, SequenceIndex: sequenceIndex}
	f.worksByID[id] = w
	return w, nil
}

func (f *fakeStore) CreateEdition(ctx context.Context, workID string, formatLabel *string) (*types.Edition, error) {
	return &types.Edition{ID: f.newID("edition"), WorkID: workID, FormatLabel: formatLabel}, nil
}

// fakePublisher records every published event name for assertions.
type fakePublisher struct {
	published []string
}

func (p *fakePublisher) Publish(ctx context.Context, eventName string, payload interface{}) {
	p.published = append(p.published, eventName)
}

// highConfidenceEpubProcessor stands in for a real format handler (out of
// scope for this module) so a test can exercise the auto-organise branch
// with an epub media type and a year claim, neither of which the bare
// FallbackProcessor supplies.
type highConfidenceEpubProcessor struct{}

func (highConfidenceEpubProcessor) SupportedType() string { return "epub" }
func (highConfidenceEpubProcessor) Priority() int         { return 100 }

func (highConfidenceEpubProcessor) CanProcess(path string) (bool, error) {
	return filepath.Ext(path) == ".epub", nil
}

func (highConfidenceEpubProcessor) Process(path string) (processor.Result, error) {
	return processor.Result{
		DetectedType: "epub",
		Claims: []processor.ExtractedClaim{
			{Key: "title", Value: "Dune", Confidence: 0.95},
			{Key: "year", Value: "1965", Confidence: 0.9},
		},
	}, nil
}

// conflictedEpubProcessor emits two disagreeing title claims from within a
// single embedded-metadata read (e.g. a file with both a title tag and a
// sort-title tag the extractor couldn't reconcile), giving the Scoring
// Engine a genuine split vote to resolve below the auto-link threshold.
type conflictedEpubProcessor struct{}

func (conflictedEpubProcessor) SupportedType() string { return "epub" }
func (conflictedEpubProcessor) Priority() int         { return 100 }

func (conflictedEpubProcessor) CanProcess(path string) (bool, error) {
	return filepath.Ext(path) == ".epub", nil
}

func (conflictedEpubProcessor) Process(path string) (processor.Result, error) {
	return processor.Result{
		DetectedType: "epub",
		Claims: []processor.ExtractedClaim{
			{Key: "title", Value: "Dune", Confidence: 0.5},
			{Key: "title", Value: "Dune Messiah", Confidence: 0.5},
		},
	}, nil
}

func newTestOrchestrator(t *testing.T, dataRoot string, s *fakeStore, pub *fakePublisher, extra ...processor.Processor) *Orchestrator {
	t.Helper()
	registry := processor.NewRegistry(processor.FallbackProcessor{}, 4, extra...)
	return &Orchestrator{
		Store:     s,
		Registry:  registry,
		Publisher: pub,
		Organiser: organiser.New(dataRoot, ""),
		Config:    DefaultConfig(filepath.Join(dataRoot, "quarantine")),
		Clock:     func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func writeCandidateFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write candidate file: %v", err)
	}
	return path
}

func asCandidate(path string) watcher.Candidate {
	return watcher.Candidate{Path: path}
}

func TestProcessCandidateHappyPathIngestsAndOrganises(t *testing.T) {
	dir := t.TempDir()
	src := writeCandidateFile(t, dir, "dune.epub", "dune contents")

	s := newFakeStore()
	pub := &fakePublisher{}
	o := newTestOrchestrator(t, filepath.Join(dir, "library"), s, pub, highConfidenceEpubProcessor{})

	o.ProcessCandidate(context.Background(), asCandidate(src))

	if len(s.assetsByHash) != 1 {
		t.Fatalf("expected 1 asset recorded, got %d", len(s.assetsByHash))
	}
	var asset *types.MediaAsset
	for _, a := range s.assetsByHash {
		asset = a
	}
	if _, err := os.Stat(asset.FilePathRoot); err != nil {
		t.Fatalf("expected asset organised onto disk at %s: %v", asset.FilePathRoot, err)
	}
	if !containsEvent(pub.published, events.MediaAdded) {
		t.Fatalf("expected MediaAdded published, got %v", pub.published)
	}
	if !containsEvent(pub.published, events.MetadataHarvested) {
		t.Fatalf("expected MetadataHarvested published, got %v", pub.published)
	}
}

func TestProcessCandidateSkipsDuplicateHash(t *testing.T) {
	dir := t.TempDir()
	srcA := writeCandidateFile(t, dir, "a.unknown", "same contents")
	srcB := writeCandidateFile(t, dir, "b.unknown", "same contents")

	s := newFakeStore()
	pub := &fakePublisher{}
	o := newTestOrchestrator(t, filepath.Join(dir, "library"), s, pub)

	o.ProcessCandidate(context.Background(), asCandidate(srcA))
	o.ProcessCandidate(context.Background(), asCandidate(srcB))

	if len(s.assetsByHash) != 1 {
		t.Fatalf("expected exactly 1 asset despite 2 candidates, got %d", len(s.assetsByHash))
	}
	if !containsEvent(pub.published, events.DuplicateSkipped) {
		t.Fatalf("expected DuplicateSkipped published, got %v", pub.published)
	}
	if _, err := os.Stat(srcB); err != nil {
		t.Fatalf("expected duplicate source file left untouched on disk: %v", err)
	}
}

func TestProcessCandidateMissingFileFailsCleanly(t *testing.T) {
	dir := t.TempDir()
	s := newFakeStore()
	pub := &fakePublisher{}
	o := newTestOrchestrator(t, filepath.Join(dir, "library"), s, pub)

	o.ProcessCandidate(context.Background(), asCandidate(filepath.Join(dir, "never-existed.unknown")))

	if len(s.assetsByHash) != 0 {
		t.Fatalf("expected no asset recorded for a missing file")
	}
	if len(s.events) == 0 || s.events[0] != "INGEST_FAILED" {
		t.Fatalf("expected INGEST_FAILED logged, got %v", s.events)
	}
}

func TestProcessCandidateConflictedClaimsSkipOrganise(t *testing.T) {
	dir := t.TempDir()
	src := writeCandidateFile(t, dir, "mystery.epub", "mystery contents")

	s := newFakeStore()
	pub := &fakePublisher{}
	o := newTestOrchestrator(t, filepath.Join(dir, "library"), s, pub, conflictedEpubProcessor{})
	// Two evenly-split title claims leave the scoring engine's confidence
	// well under the default 0.85 auto-link threshold, so the asset should
	// be catalogued as conflicted but left at its original path.
	o.ProcessCandidate(context.Background(), asCandidate(src))

	var asset *types.MediaAsset
	for _, a := range s.assetsByHash {
		asset = a
	}
	if asset == nil {
		t.Fatalf("expected asset recorded")
	}
	if asset.Status != types.AssetConflicted {
		t.Fatalf("expected conflicted status, got %s", asset.Status)
	}
	if asset.FilePathRoot != src {
		t.Fatalf("expected conflicted asset left at source path %s, got %s", src, asset.FilePathRoot)
	}
}

func containsEvent(events []string, name string) bool {
	for _, e := range events {
		if e == name {
			return true
		}
	}
	return false
}

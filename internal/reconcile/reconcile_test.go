package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/localfirst/mediaengine/internal/organiser"
	"github.com/localfirst/mediaengine/internal/store"
	"github.com/localfirst/mediaengine/internal/types"
)

type fakeStore struct {
	assets       map[string]*types.MediaAsset
	assetsByHash map[string]*types.MediaAsset
	hubsByNorm   map[string]*types.Hub
	claims       map[string][]types.MetadataClaim
	canonical    map[string]map[string]string
	nextID       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		assets:       make(map[string]*types.MediaAsset),
		assetsByHash: make(map[string]*types.MediaAsset),
		hubsByNorm:   make(map[string]*types.Hub),
		claims:       make(map[string][]types.MetadataClaim),
		canonical:    make(map[string]map[string]string),
	}
}

func (f *fakeStore) newID(prefix string) string {
	f.nextID++
	return prefix + "-" + strings.Repeat("x", f.nextID)
}

func (f *fakeStore) AllAssetPaths(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	for id, a := range f.assets {
		if a.Status != types.AssetOrphaned {
			out[id] = a.FilePathRoot
		}
	}
	return out, nil
}

func (f *fakeStore) SetAssetStatus(ctx context.Context, assetID string, status types.AssetStatus) error {
	if a, ok := f.assets[assetID]; ok {
		a.Status = status
	}
	return nil
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
	f.assets[asset.ID] = asset
	f.assetsByHash[asset.ContentHash] = asset
	return types.Inserted, nil
}

func (f *fakeStore) AppendClaim(ctx context.Context, claim *types.MetadataClaim) error {
	f.claims[claim.EntityID] = append(f.claims[claim.EntityID], *claim)
	return nil
}

func (f *fakeStore) UpsertCanonical(ctx context.Context, entityID, key, value string, ts time.Time) error {
	if f.canonical[entityID] == nil {
		f.canonical[entityID] = make(map[string]string)
	}
	f.canonical[entityID][key] = value
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

func (f *fakeStore) CreateWorkWithID(ctx context.Context, id, hubID string, mediaType types.MediaType, sequenceIndex *int) (*types.Work, error) {
	return &types.Work{ID: id, HubID: &hubID, MediaType: mediaType, SequenceIndex: sequenceIndex}, nil
}

func (f *fakeStore) CreateEdition(ctx context.Context, workID string, formatLabel *string) (*types.Edition, error) {
	return &types.Edition{ID: f.newID("edition"), WorkID: workID, FormatLabel: formatLabel}, nil
}

func TestReconcileOrphansFlipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.epub")
	if err := os.WriteFile(present, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed present file: %v", err)
	}

	s := newFakeStore()
	s.assets["a1"] = &types.MediaAsset{ID: "a1", ContentHash: "hash1", FilePathRoot: present, Status: types.AssetNormal}
	s.assets["a2"] = &types.MediaAsset{ID: "a2", ContentHash: "hash2", FilePathRoot: filepath.Join(dir, "gone.epub"), Status: types.AssetNormal}

	result, err := ReconcileOrphans(context.Background(), s, nil)
	if err != nil {
		t.Fatalf("ReconcileOrphans: %v", err)
	}
	if result.Checked != 2 {
		t.Fatalf("expected 2 checked, got %d", result.Checked)
	}
	if result.Orphaned != 1 {
		t.Fatalf("expected 1 orphaned, got %d", result.Orphaned)
	}
	if s.assets["a1"].Status != types.AssetNormal {
		t.Fatalf("expected present asset to remain normal")
	}
	if s.assets["a2"].Status != types.AssetOrphaned {
		t.Fatalf("expected missing asset orphaned")
	}
}

func TestReconcileOrphansSkipsAlreadyOrphaned(t *testing.T) {
	s := newFakeStore()
	s.assets["a1"] = &types.MediaAsset{ID: "a1", ContentHash: "hash1", FilePathRoot: "/nonexistent", Status: types.AssetOrphaned}

	result, err := ReconcileOrphans(context.Background(), s, nil)
	if err != nil {
		t.Fatalf("ReconcileOrphans: %v", err)
	}
	if result.Checked != 0 {
		t.Fatalf("expected already-orphaned assets excluded from the checked set, got %d", result.Checked)
	}
}

func TestInhaleRestoresFromSidecar(t *testing.T) {
	dir := t.TempDir()
	mediaPath := filepath.Join(dir, "Dune.epub")
	if err := os.WriteFile(mediaPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("seed media file: %v", err)
	}

	sc := organiser.Sidecar{
		SchemaVersion: 1,
		ContentHash:   "deadbeef",
		HubName:       "Dune",
		MediaType:     "epub",
		EntityID:      "work-1",
		WrittenAt:     "2026-01-01T00:00:00Z",
		Claims: []organiser.SidecarClaim{
			{EntityType: "work", ProviderID: "filesystem", Key: "title", Value: "Dune", Confidence: 1.0, ClaimedAt: "2026-01-01T00:00:00Z"},
		},
		Canonical: []organiser.SidecarCanonical{{Key: "title", Value: "Dune"}},
	}
	if err := organiser.WriteSidecar(mediaPath, sc); err != nil {
		t.Fatalf("WriteSidecar: %v", err)
	}

	s := newFakeStore()
	result, err := Inhale(context.Background(), s, dir, nil)
	if err != nil {
		t.Fatalf("Inhale: %v", err)
	}
	if result.SidecarsVisited != 1 || result.AssetsRestored != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if _, ok := s.assetsByHash["deadbeef"]; !ok {
		t.Fatalf("expected asset reinserted by content hash")
	}
	if got := s.claims["work-1"]; len(got) != 1 || got[0].ClaimValue != "Dune" {
		t.Fatalf("expected 1 replayed claim, got %+v", got)
	}
	if s.canonical["work-1"]["title"] != "Dune" {
		t.Fatalf("expected canonical title replayed, got %+v", s.canonical["work-1"])
	}
}

func TestInhaleSkipsAssetsAlreadyCatalogued(t *testing.T) {
	dir := t.TempDir()
	mediaPath := filepath.Join(dir, "Dune.epub")
	os.WriteFile(mediaPath, []byte("x"), 0o644)
	sc := organiser.Sidecar{ContentHash: "deadbeef", HubName: "Dune", EntityID: "work-1", MediaType: "epub"}
	if err := organiser.WriteSidecar(mediaPath, sc); err != nil {
		t.Fatalf("WriteSidecar: %v", err)
	}

	s := newFakeStore()
	s.assetsByHash["deadbeef"] = &types.MediaAsset{ID: "already-there", ContentHash: "deadbeef"}

	result, err := Inhale(context.Background(), s, dir, nil)
	if err != nil {
		t.Fatalf("Inhale: %v", err)
	}
	if result.AssetsSkipped != 1 || result.AssetsRestored != 0 {
		t.Fatalf("expected the already-catalogued asset to be skipped, got %+v", result)
	}
}

package chainfactory

import (
	"context"
	"strings"
	"testing"

	"github.com/localfirst/mediaengine/internal/store"
	"github.com/localfirst/mediaengine/internal/types"
)

type fakeStore struct {
	hubsByNorm map[string]*types.Hub
	nextID     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{hubsByNorm: make(map[string]*types.Hub)}
}

func (f *fakeStore) newID(prefix string) string {
	f.nextID++
	return prefix + "-" + string(rune('a'+f.nextID))
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
	return &types.Work{ID: f.newID("work"), HubID: &hubID, MediaType: mediaType, SequenceIndex: sequenceIndex}, nil
}

func (f *fakeStore) CreateWorkWithID(ctx context.Context, id, hubID string, mediaType types.MediaType, sequenceIndex *int) (*types.Work, error) {
	return &types.Work{ID: id, HubID: &hubID, MediaType: mediaType, SequenceIndex: sequenceIndex}, nil
}

func (f *fakeStore) CreateEdition(ctx context.Context, workID string, formatLabel *string) (*types.Edition, error) {
	return &types.Edition{ID: f.newID("edition"), WorkID: workID, FormatLabel: formatLabel}, nil
}

func TestBuildCreatesNewHubWhenAbsent(t *testing.T) {
	s := newFakeStore()
	chain, err := Build(context.Background(), s, types.MediaEpub, map[string]string{"title": "Dune"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if chain.Hub.DisplayName != "Dune" {
		t.Fatalf("expected Dune hub, got %+v", chain.Hub)
	}
}

func TestBuildReusesHubCaseInsensitive(t *testing.T) {
	s := newFakeStore()
	first, err := Build(context.Background(), s, types.MediaEpub, map[string]string{"title": "Dune"})
	if err != nil {
		t.Fatalf("Build first: %v", err)
	}
	second, err := Build(context.Background(), s, types.MediaMovie, map[string]string{"title": "  DUNE  "})
	if err != nil {
		t.Fatalf("Build second: %v", err)
	}
	if first.Hub.ID != second.Hub.ID {
		t.Fatalf("expected same hub reused, got %s and %s", first.Hub.ID, second.Hub.ID)
	}
	if first.Work.ID == second.Work.ID {
		t.Fatalf("expected a fresh Work every call")
	}
}

func TestBuildMissingTitleFallsBackToUnknown(t *testing.T) {
	s := newFakeStore()
	chain, err := Build(context.Background(), s, types.MediaEpub, map[string]string{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if chain.Hub.DisplayName != "Unknown" {
		t.Fatalf("expected Unknown hub, got %s", chain.Hub.DisplayName)
	}
}

func TestBuildAppliesSequenceIndexAndFormat(t *testing.T) {
	s := newFakeStore()
	chain, err := Build(context.Background(), s, types.MediaEpub, map[string]string{"title": "Dune", "series_index": "2", "format": "epub"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if chain.Work.SequenceIndex == nil || *chain.Work.SequenceIndex != 2 {
		t.Fatalf("expected sequence index 2, got %+v", chain.Work.SequenceIndex)
	}
	if chain.Edition.FormatLabel == nil || *chain.Edition.FormatLabel != "epub" {
		t.Fatalf("expected format epub, got %+v", chain.Edition.FormatLabel)
	}
}

func TestBuildWithWorkIDReusesPreassignedID(t *testing.T) {
	s := newFakeStore()
	chain, err := BuildWithWorkID(context.Background(), s, types.MediaEpub, map[string]string{"title": "Dune"}, "preassigned-work-id")
	if err != nil {
		t.Fatalf("BuildWithWorkID: %v", err)
	}
	if chain.Work.ID != "preassigned-work-id" {
		t.Fatalf("expected preassigned work id, got %s", chain.Work.ID)
	}
	if chain.Edition.WorkID != "preassigned-work-id" {
		t.Fatalf("expected edition to reference preassigned work id, got %s", chain.Edition.WorkID)
	}
}

// Package processor defines the pluggable boundary between a file on disk
// and the metadata claims extracted from it. Each Processor implementation
// is a stateless, read-only format sniffer (EPUB, audiobook, comic, plain
// video) — this package only holds the registry that picks one.
//
// Grounded on the teacher's internal/extractor Pipeline: a slice of
// pluggable implementations tried in order, merged by the caller. Here the
// pick is first-match-by-priority rather than run-all-and-merge, per spec
// §4.6's resolve() contract.
package processor

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/semaphore"
)

// ExtractedClaim is one (key, value, confidence) triple a Processor read
// directly from a file's embedded metadata.
type ExtractedClaim struct {
	Key        string
	Value      string
	Confidence float64
}

// Result is a Processor's full output for one file.
type Result struct {
	DetectedType   string
	Claims         []ExtractedClaim
	CoverBytes     []byte
	CoverMIME      string
	IsCorrupt      bool
	CorruptReason  string
}

// Processor is implemented by each format-specific extractor. Implementations
// must be stateless and must never modify the file they inspect.
type Processor interface {
	SupportedType() string
	Priority() int
	CanProcess(path string) (bool, error)
	Process(path string) (Result, error)
}

// Registry holds every registered Processor plus the mandatory fallback,
// and bounds concurrent Process calls under a semaphore.
type Registry struct {
	processors []Processor
	fallback   Processor
	sem        *semaphore.Weighted
}

// NewRegistry builds a Registry. capacity <= 0 defaults to host parallelism,
// matching spec §4.6's "defaults to host parallelism" concurrency bound.
func NewRegistry(fallback Processor, capacity int, processors ...Processor) *Registry {
	if capacity <= 0 {
		capacity = runtime.GOMAXPROCS(0)
	}
	sorted := make([]Processor, len(processors))
	copy(sorted, processors)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() > sorted[j].Priority()
	})
	return &Registry{
		processors: sorted,
		fallback:   fallback,
		sem:        semaphore.NewWeighted(int64(capacity)),
	}
}

// Resolve scans processors by descending priority and returns the first
// whose CanProcess is true. If none match, the fallback is returned without
// ever invoking its CanProcess (spec §4.6: the fallback is unconditional).
func (r *Registry) Resolve(path string) (Processor, error) {
	for _, p := range r.processors {
		ok, err := p.CanProcess(path)
		if err != nil {
			return nil, fmt.Errorf("probe %s with %s: %w", path, p.SupportedType(), err)
		}
		if ok {
			return p, nil
		}
	}
	return r.fallback, nil
}

// Process resolves a processor for path and invokes it under the registry's
// semaphore, bounding concurrent memory use across simultaneous ingests.
func (r *Registry) Process(ctx context.Context, path string) (Result, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("acquire processor slot: %w", err)
	}
	defer r.sem.Release(1)

	p, err := r.Resolve(path)
	if err != nil {
		return Result{}, err
	}
	result, err := p.Process(path)
	if err != nil {
		return Result{}, fmt.Errorf("process %s with %s: %w", path, p.SupportedType(), err)
	}
	return result, nil
}

package processor

import (
	"path/filepath"
	"strings"
)

// FallbackPriority is the minimum priority value: spec §4.6 requires the
// fallback be registered below every real format handler, and reserves it
// from ever being probed via CanProcess.
const FallbackPriority = int(^uint(0) >> 1) * -1

// FallbackProcessor is the unconditional last resort the registry falls
// back to when no concrete format handler (EPUB, video, comic — out of
// scope for this module; see spec §1 Non-goals) claims a file. It derives
// a best-effort title claim from the filename alone.
type FallbackProcessor struct{}

func (FallbackProcessor) SupportedType() string { return "unknown" }

func (FallbackProcessor) Priority() int { return FallbackPriority }

// CanProcess is never invoked by Registry.Resolve for the fallback, but is
// implemented to satisfy the Processor interface and to return true for any
// completeness check run outside the registry.
func (FallbackProcessor) CanProcess(path string) (bool, error) {
	return true, nil
}

func (FallbackProcessor) Process(path string) (Result, error) {
	base := filepath.Base(path)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Unknown"
	}
	return Result{
		DetectedType: "unknown",
		Claims: []ExtractedClaim{
			{Key: "title", Value: title, Confidence: 0.1},
		},
	}, nil
}

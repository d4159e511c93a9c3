// Package scoring implements the per-field weighted-voter arbitration that
// turns a bag of append-only metadata claims into canonical values. The
// algorithm is pure and deterministic: no I/O, no randomness, and no
// wall-clock read unless the caller leaves Context.Now zero, in which case
// Score uses the current time as "now".
//
// Grounded on the teacher's internal/extractor/pipeline.go merge-by-
// confidence loop (entities keyed by name, higher confidence wins) —
// generalised here to weighted, normalised voting across an arbitrary
// number of providers instead of a two-way max.
package scoring

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/localfirst/mediaengine/internal/types"
)

// Config holds the tunables spec §4.2 names.
type Config struct {
	AutoLinkThreshold float64
	ConflictThreshold float64
	ConflictEpsilon   float64
	StaleDecayDays    int
	StaleDecayFactor  float64
}

// DefaultConfig matches spec §4.2's defaults.
func DefaultConfig() Config {
	return Config{
		AutoLinkThreshold: 0.85,
		ConflictThreshold: 0.60,
		ConflictEpsilon:   0.05,
		StaleDecayDays:    90,
		StaleDecayFactor:  0.8,
	}
}

// Context is the input to Score: every claim for one entity, plus the
// provider weight tables and a reference "now" for stale-decay age
// calculations.
type Context struct {
	EntityID             string
	Claims               []types.MetadataClaim
	ProviderWeights      map[string]float64
	ProviderFieldWeights map[string]map[string]float64
	Config               Config
	Now                  time.Time
}

// FieldScore is the winner for one claim_key.
type FieldScore struct {
	Key               string
	Value             string
	Confidence        float64
	WinningProviderID string
	Conflicted        bool
}

// Result is the full scoring output for one entity.
type Result struct {
	EntityID          string
	FieldScores       []FieldScore
	OverallConfidence float64
	ScoredAt          time.Time
}

// Score groups claims by field and arbitrates each field independently. A
// field whose resolveField returns ok=false is skipped and the others are
// still scored — this Go port replaces the source's per-field try/catch
// with that explicit result (spec §4.2.4, §9). Panics are not recovered.
func Score(ctx Context) Result {
	now := ctx.Now
	if now.IsZero() {
		now = time.Now()
	}

	groups := groupByKey(ctx.Claims)

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var scores []FieldScore
	var confidenceSum float64
	for _, key := range keys {
		fs, ok := resolveField(key, groups[key], ctx, now)
		if !ok {
			continue
		}
		scores = append(scores, fs)
		confidenceSum += fs.Confidence
	}

	overall := 0.0
	if len(scores) > 0 {
		overall = confidenceSum / float64(len(scores))
	}

	return Result{
		EntityID:          ctx.EntityID,
		FieldScores:       scores,
		OverallConfidence: overall,
		ScoredAt:          now,
	}
}

// groupByKey groups claims by case-insensitive claim_key, preserving input
// order within each group (scoring is order-independent by construction,
// but the group slice order doesn't need to be — only the normalised
// weights do).
func groupByKey(claims []types.MetadataClaim) map[string][]types.MetadataClaim {
	groups := make(map[string][]types.MetadataClaim)
	for _, c := range claims {
		key := strings.ToLower(c.ClaimKey)
		groups[key] = append(groups[key], c)
	}
	return groups
}

// resolveField implements spec §4.2 step 2 for a single field. The bool
// return models the "resolver returned an error variant, skip silently"
// control flow in place of the source's exception-as-control-flow (§9).
func resolveField(key string, claims []types.MetadataClaim, ctx Context, now time.Time) (FieldScore, bool) {
	if len(claims) == 0 {
		return FieldScore{}, false
	}

	// 2.a user-lock short-circuit: most recent locked claim wins outright.
	var lockedWinner *types.MetadataClaim
	for i := range claims {
		c := &claims[i]
		if !c.IsUserLocked {
			continue
		}
		if lockedWinner == nil || c.ClaimedAt.After(lockedWinner.ClaimedAt) {
			lockedWinner = c
		}
	}
	if lockedWinner != nil {
		return FieldScore{
			Key:               key,
			Value:             lockedWinner.ClaimValue,
			Confidence:        1.0,
			WinningProviderID: lockedWinner.ProviderID,
			Conflicted:        false,
		}, true
	}

	// 2.b effective per-provider weight for this field.
	weightFor := func(providerID string) float64 {
		if fw, ok := ctx.ProviderFieldWeights[providerID]; ok {
			if w, ok := fw[key]; ok {
				return w
			}
		}
		if w, ok := ctx.ProviderWeights[providerID]; ok {
			return w
		}
		return 1.0
	}

	// 2.c raw weight per claim.
	raw := make([]float64, len(claims))
	var totalRaw float64
	for i, c := range claims {
		staleFactor := 1.0
		if ctx.Config.StaleDecayDays > 0 {
			age := now.Sub(c.ClaimedAt)
			if age > time.Duration(ctx.Config.StaleDecayDays)*24*time.Hour {
				staleFactor = ctx.Config.StaleDecayFactor
			}
		}
		r := c.Confidence * weightFor(c.ProviderID) * staleFactor
		if r < 0 {
			r = 0
		}
		raw[i] = r
		totalRaw += r
	}

	// 2.d normalise to sum 1.0; uniform distribution if everything is zero.
	normalized := make([]float64, len(claims))
	uniformFallback := totalRaw <= 0
	if !uniformFallback {
		for i, r := range raw {
			normalized[i] = r / totalRaw
		}
	} else {
		uniform := 1.0 / float64(len(claims))
		for i := range normalized {
			normalized[i] = uniform
		}
	}

	// 2.e group by normalised (trim+lowercase) value, summing weights.
	type valueGroup struct {
		value           string
		displayValue    string
		total           float64
		topProviderID   string
		topProviderConf float64
	}
	groupsByValue := make(map[string]*valueGroup)
	var order []string
	for i, c := range claims {
		norm := strings.ToLower(strings.TrimSpace(c.ClaimValue))
		g, ok := groupsByValue[norm]
		if !ok {
			g = &valueGroup{value: norm, displayValue: strings.TrimSpace(c.ClaimValue)}
			groupsByValue[norm] = g
			order = append(order, norm)
		}
		g.total += normalized[i]
		if normalized[i] > g.topProviderConf {
			g.topProviderConf = normalized[i]
			g.topProviderID = c.ProviderID
		}
	}

	// 2.f winner = highest total; ties broken on the normalised value itself
	// so the outcome never depends on claim iteration/input order (§8
	// scoring determinism).
	sort.Slice(order, func(i, j int) bool {
		ti, tj := groupsByValue[order[i]].total, groupsByValue[order[j]].total
		if ti != tj {
			return ti > tj
		}
		return order[i] < order[j]
	})
	winner := groupsByValue[order[0]]

	// All-weights-zero falls back to a uniform split across distinct values,
	// which is definitionally a tie, not a conflict (§8 boundary).
	conflicted := false
	if !uniformFallback && len(order) > 1 {
		runnerUp := groupsByValue[order[1]]
		if winner.total > 0 {
			ratio := runnerUp.total / winner.total
			// The 1e-9 slack keeps a runner-up at exactly 1 − epsilon of the
			// winner from missing the boundary through float rounding.
			conflicted = ratio >= (1-ctx.Config.ConflictEpsilon)-1e-9
		}
	}

	return FieldScore{
		Key:               key,
		Value:             winner.displayValue,
		Confidence:        math.Min(1.0, winner.total),
		WinningProviderID: winner.topProviderID,
		Conflicted:        conflicted,
	}, true
}

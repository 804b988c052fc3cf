// Package tagger attributes documents to farms with deterministic additive
// scoring. It never calls a model.
package tagger

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sells-group/farm-ledger/internal/model"
)

// Score weights per matched configuration entry.
const (
	WeightIdentifier       = 1.0
	WeightFarmKeyword      = 0.15
	WeightVendorIdentifier = 1.0
	WeightVendorKeyword    = 0.25
)

// Review reasons.
const (
	ReasonNoFarms          = "No farms configured"
	ReasonZeroMatches      = "Zero matches found"
	ReasonLowConfidence    = "Low confidence"
	ReasonHighConfidence   = "High confidence match"
	ReasonSimilarKeywords  = "Multiple farm candidates with similar keyword scores; identifier match required"
	reasonVendorAmbiguityF = "Vendor ambiguity: {%s} appears in multiple farms; identifier match required"
)

// AutoThreshold is the confidence at or above which no review is needed.
const AutoThreshold = 0.85

// Tag scores text against every farm and applies the confidence policy.
// Matching is case-insensitive substring containment on the raw text.
func Tag(text string, cfg *model.FarmsConfig) *model.TagResult {
	if cfg == nil || len(cfg.Farms) == 0 {
		return &model.TagResult{
			AllCandidates:     []model.TagCandidate{},
			NeedsManualReview: true,
			Reason:            ReasonNoFarms,
		}
	}

	lower := strings.ToLower(text)

	var candidates []model.TagCandidate
	for _, farm := range cfg.Farms {
		score, rules := scoreFarm(lower, farm)
		if score > 0 {
			candidates = append(candidates, model.TagCandidate{
				FarmID:       farm.ID,
				FarmName:     farm.DisplayName(),
				Score:        score,
				MatchedRules: dedupe(rules),
			})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) == 0 {
		return &model.TagResult{
			AllCandidates:     []model.TagCandidate{},
			NeedsManualReview: true,
			Reason:            ReasonZeroMatches,
		}
	}

	top := candidates[0]
	var second float64
	if len(candidates) > 1 {
		second = candidates[1].Score
	}
	gap := top.Score - second
	confidence := Confidence(top.Score, second)

	var review bool
	var reason string
	if !top.HasIdentifierMatch() && len(candidates) >= 2 && gap < 0.3 {
		confidence = math.Min(confidence, 0.70)
		review = true
		reason = ReasonSimilarKeywords
	} else {
		review = confidence < AutoThreshold
		reason = ReasonHighConfidence
		if review {
			reason = ReasonLowConfidence
		}
	}

	if len(candidates) >= 2 && !top.HasIdentifierMatch() {
		if shared := sharedVendors(cfg, top.FarmID, candidates[1].FarmID); len(shared) > 0 {
			confidence = math.Min(confidence, 0.70)
			review = true
			reason = fmt.Sprintf(reasonVendorAmbiguityF, strings.Join(shared, ", "))
		}
	}

	return &model.TagResult{
		TopCandidate:      &candidates[0],
		AllCandidates:     candidates,
		Confidence:        Round2(confidence),
		NeedsManualReview: review,
		Reason:            reason,
	}
}

// Confidence maps the top two scores to a confidence before guards apply.
func Confidence(top, second float64) float64 {
	gap := top - second
	switch {
	case top >= 1.0 && gap >= 0.5:
		return 0.95
	case top >= 1.0 && gap >= 0.3:
		return 0.85
	case top >= 0.5:
		return 0.70
	default:
		return top / 2.0
	}
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func scoreFarm(lower string, farm model.Farm) (float64, []string) {
	var score float64
	var rules []string

	for _, id := range farm.Identifiers {
		if contains(lower, id) {
			score += WeightIdentifier
			rules = append(rules, model.MatchIdentifier)
		}
	}
	for _, kw := range farm.Keywords {
		if contains(lower, kw) {
			score += WeightFarmKeyword
			rules = append(rules, model.MatchFarmKeyword)
		}
	}
	for _, vk := range sortedKeys(farm.Vendors) {
		v := farm.Vendors[vk]
		for _, id := range v.Identifiers {
			if contains(lower, id) {
				score += WeightVendorIdentifier
				rules = append(rules, model.MatchVendorIdentifier)
			}
		}
		for _, kw := range v.Keywords {
			if contains(lower, kw) {
				score += WeightVendorKeyword
				rules = append(rules, model.MatchVendorKeyword)
			}
		}
	}
	return score, rules
}

func contains(lower, needle string) bool {
	n := strings.ToLower(strings.TrimSpace(needle))
	return n != "" && strings.Contains(lower, n)
}

func sharedVendors(cfg *model.FarmsConfig, a, b string) []string {
	fa, okA := cfg.Lookup(a)
	fb, okB := cfg.Lookup(b)
	if !okA || !okB {
		return nil
	}
	var shared []string
	for vk := range fa.Vendors {
		if _, ok := fb.Vendors[vk]; ok {
			shared = append(shared, vk)
		}
	}
	sort.Strings(shared)
	return shared
}

func sortedKeys(m map[string]model.VendorConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func dedupe(rules []string) []string {
	seen := make(map[string]bool, len(rules))
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}

package model

// Matched rule kinds recorded on a TagCandidate.
const (
	MatchIdentifier       = "identifier_match"
	MatchFarmKeyword      = "farm_keyword"
	MatchVendorIdentifier = "vendor_identifier_match"
	MatchVendorKeyword    = "vendor_keyword"
	MatchDynamicRule      = "dynamic_rule"
	MatchBillToContains   = "bill_to_contains_all"
	MatchBillTo           = "bill_to_match"
)

// TagCandidate is one farm considered for a document.
type TagCandidate struct {
	FarmID       string   `json:"farm_id"`
	FarmName     string   `json:"farm_name"`
	Score        float64  `json:"score"`
	MatchedRules []string `json:"matched_rules"`
}

// HasIdentifierMatch reports whether the candidate matched on an
// identifier rather than on keywords alone.
func (c TagCandidate) HasIdentifierMatch() bool {
	for _, r := range c.MatchedRules {
		if r == MatchIdentifier || r == MatchVendorIdentifier {
			return true
		}
	}
	return false
}

// TagResult is the outcome of farm attribution for one document.
type TagResult struct {
	TopCandidate      *TagCandidate  `json:"top_candidate,omitempty"`
	AllCandidates     []TagCandidate `json:"all_candidates"`
	Confidence        float64        `json:"confidence"`
	NeedsManualReview bool           `json:"needs_manual_review"`
	Reason            string         `json:"reason"`
}

// TopFarmID returns the top candidate's farm id, or "" when there is none.
func (r *TagResult) TopFarmID() string {
	if r == nil || r.TopCandidate == nil {
		return ""
	}
	return r.TopCandidate.FarmID
}

// TopN returns at most n candidates.
func (r *TagResult) TopN(n int) []TagCandidate {
	if r == nil {
		return nil
	}
	if len(r.AllCandidates) <= n {
		return r.AllCandidates
	}
	return r.AllCandidates[:n]
}

// Package rules implements reinforced dynamic attribution rules: the
// ordered strategy chain evaluated ahead of scoring, rule identity, the
// rules file, and vendor/account collision detection.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/normalize"
	"github.com/sells-group/farm-ledger/internal/tagger"
)

// Confidence levels assigned by dynamic rules.
const (
	ConfidenceDisambiguated = 0.99
	ConfidenceVendorOnly    = 0.70
)

// Text is a document's text in the forms rules match against.
type Text struct {
	Raw        string
	Normalized string
	Identifier string
}

// NewText precomputes the normalized forms of raw.
func NewText(raw string) Text {
	return Text{
		Raw:        raw,
		Normalized: normalize.Text(raw),
		Identifier: normalize.Identifier(raw),
	}
}

// Strategy is one step of the attribution chain. Evaluate reports false
// when the strategy does not apply, passing the document to the next step.
type Strategy interface {
	Name() string
	Evaluate(t Text) (*model.TagResult, bool)
}

// BillToContainsAll assigns a farm when every token of a rule appears.
type BillToContainsAll struct {
	Rules []model.DynamicRule
	Farms *model.FarmsConfig
}

func (s BillToContainsAll) Name() string { return model.RuleTypeBillToContainsAll }

func (s BillToContainsAll) Evaluate(t Text) (*model.TagResult, bool) {
	for _, r := range s.Rules {
		if len(r.Tokens) == 0 {
			continue
		}
		if !containsAllTokens(t.Normalized, r.Tokens) {
			continue
		}
		farmID := strings.TrimSpace(r.TargetFarm())
		if farmID == "" {
			continue
		}
		return single(s.Farms, farmID, ConfidenceDisambiguated, ConfidenceDisambiguated,
			model.MatchBillToContains, "Bill-to contains all: "+strings.Join(r.Tokens, ", ")), true
	}
	return nil, false
}

func containsAllTokens(text string, tokens []string) bool {
	for _, tok := range tokens {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		if !strings.Contains(text, tok) {
			return false
		}
	}
	return true
}

// BillToMatch assigns a farm when a rule's match text appears.
type BillToMatch struct {
	Rules []model.DynamicRule
	Farms *model.FarmsConfig
}

func (s BillToMatch) Name() string { return model.RuleTypeBillToMatch }

func (s BillToMatch) Evaluate(t Text) (*model.TagResult, bool) {
	for _, r := range s.Rules {
		match := strings.TrimSpace(r.MatchText)
		needle := normalize.Text(match)
		if needle == "" || !strings.Contains(t.Normalized, needle) {
			continue
		}
		farmID := strings.TrimSpace(r.TargetFarm())
		if farmID == "" {
			continue
		}
		return single(s.Farms, farmID, ConfidenceDisambiguated, ConfidenceDisambiguated,
			model.MatchBillTo, "Bill-to match: "+match), true
	}
	return nil, false
}

// VendorAccount matches vendor+account rules, most specific first.
type VendorAccount struct {
	rules []model.DynamicRule
	farms *model.FarmsConfig
}

// NewVendorAccount keeps the rules that carry both a vendor key and an
// account number and orders them: service-address rules, then keyword
// rules, then bare rules; within a tier by priority descending, then
// rule id ascending.
func NewVendorAccount(all []model.DynamicRule, farms *model.FarmsConfig) VendorAccount {
	var rules []model.DynamicRule
	for _, r := range all {
		if isSpecial(r) {
			continue
		}
		if normalize.Identifier(r.VendorKey) == "" || normalize.Identifier(r.AccountNumber) == "" {
			continue
		}
		rules = append(rules, r)
	}
	sort.SliceStable(rules, func(i, j int) bool {
		ti, tj := tier(rules[i]), tier(rules[j])
		if ti != tj {
			return ti < tj
		}
		pi, pj := rules[i].EffectivePriority(), rules[j].EffectivePriority()
		if pi != pj {
			return pi > pj
		}
		return rules[i].RuleID < rules[j].RuleID
	})
	return VendorAccount{rules: rules, farms: farms}
}

// Rules returns the rules in evaluation order.
func (s VendorAccount) Rules() []model.DynamicRule { return s.rules }

func (s VendorAccount) Name() string { return "vendor_account" }

func (s VendorAccount) Evaluate(t Text) (*model.TagResult, bool) {
	for _, r := range s.rules {
		if !s.matches(r, t) {
			continue
		}
		farmID := strings.TrimSpace(r.FarmID)
		if farmID == "" {
			continue
		}
		confidence := ConfidenceDisambiguated
		if !r.HasDisambiguator() {
			confidence = ConfidenceVendorOnly
		}
		return single(s.farms, farmID, float64(r.EffectivePriority()), confidence,
			model.MatchDynamicRule, fmt.Sprintf("Dynamic rule match (%s)", r.RuleID)), true
	}
	return nil, false
}

func (s VendorAccount) matches(r model.DynamicRule, t Text) bool {
	vendor := normalize.Identifier(r.VendorKey)
	account := normalize.Identifier(r.AccountNumber)
	if vendor == "" || account == "" {
		return false
	}
	if !vendorInText(vendor, t, s.farms) {
		return false
	}
	if !strings.Contains(t.Identifier, account) {
		return false
	}
	for _, svc := range r.ServiceAddressContains {
		if n := normalize.Text(svc); n != "" && !strings.Contains(t.Normalized, n) {
			return false
		}
	}
	var keywords []string
	for _, kw := range r.KeywordsAny {
		if n := normalize.Text(kw); n != "" {
			keywords = append(keywords, n)
		}
	}
	if len(keywords) == 0 {
		return true
	}
	for _, kw := range keywords {
		if strings.Contains(t.Normalized, kw) {
			return true
		}
	}
	return false
}

// vendorInText accepts the vendor when its normalized key appears in the
// identifier text, or when any configured name or keyword for a vendor with
// the same normalized key appears in the normalized text.
func vendorInText(vendor string, t Text, farms *model.FarmsConfig) bool {
	if strings.Contains(t.Identifier, vendor) {
		return true
	}
	if farms == nil {
		return false
	}
	for _, farm := range farms.Farms {
		for vk, vc := range farm.Vendors {
			if normalize.Identifier(vk) != vendor {
				continue
			}
			terms := append([]string{vk, vc.Name}, vc.Keywords...)
			for _, term := range terms {
				if n := normalize.Text(term); n != "" && strings.Contains(t.Normalized, n) {
					return true
				}
			}
		}
	}
	return false
}

// ScoringFallback runs the deterministic scoring classifier. It always
// applies.
type ScoringFallback struct {
	Farms *model.FarmsConfig
}

func (s ScoringFallback) Name() string { return model.TagStageDeterministic }

func (s ScoringFallback) Evaluate(t Text) (*model.TagResult, bool) {
	return tagger.Tag(t.Raw, s.Farms), true
}

func single(farms *model.FarmsConfig, farmID string, score, confidence float64, kind, reason string) *model.TagResult {
	c := model.TagCandidate{
		FarmID:       farmID,
		FarmName:     farms.FarmName(farmID),
		Score:        score,
		MatchedRules: []string{kind},
	}
	return &model.TagResult{
		TopCandidate:      &c,
		AllCandidates:     []model.TagCandidate{c},
		Confidence:        confidence,
		NeedsManualReview: confidence < tagger.AutoThreshold,
		Reason:            reason,
	}
}

func isSpecial(r model.DynamicRule) bool {
	return r.Type == model.RuleTypeBillToContainsAll || r.Type == model.RuleTypeBillToMatch
}

func tier(r model.DynamicRule) int {
	switch {
	case len(r.ServiceAddressContains) > 0:
		return 0
	case len(r.KeywordsAny) > 0:
		return 1
	default:
		return 2
	}
}

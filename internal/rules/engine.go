package rules

import (
	"github.com/sells-group/farm-ledger/internal/model"
)

// Engine evaluates the attribution chain: bill-to-contains-all, bill-to
// match, vendor+account rules, then deterministic scoring. The first
// strategy that applies decides.
type Engine struct {
	strategies []Strategy
}

// NewEngine builds the chain from the current rule set and farm roster.
func NewEngine(all []model.DynamicRule, farms *model.FarmsConfig) *Engine {
	var containsAll, billTo []model.DynamicRule
	for _, r := range all {
		switch r.Type {
		case model.RuleTypeBillToContainsAll:
			containsAll = append(containsAll, r)
		case model.RuleTypeBillToMatch:
			billTo = append(billTo, r)
		}
	}
	return &Engine{strategies: []Strategy{
		BillToContainsAll{Rules: containsAll, Farms: farms},
		BillToMatch{Rules: billTo, Farms: farms},
		NewVendorAccount(all, farms),
		ScoringFallback{Farms: farms},
	}}
}

// Evaluate attributes text and returns the result with the tagging stage
// that produced it: model.TagStageDynamicRule or model.TagStageDeterministic.
func (e *Engine) Evaluate(raw string) (*model.TagResult, string) {
	t := NewText(raw)
	for _, s := range e.strategies {
		if res, ok := s.Evaluate(t); ok {
			if _, fallback := s.(ScoringFallback); fallback {
				return res, model.TagStageDeterministic
			}
			return res, model.TagStageDynamicRule
		}
	}
	// The chain ends in ScoringFallback, which always applies.
	return nil, ""
}

// Strategies returns the chain in evaluation order.
func (e *Engine) Strategies() []Strategy { return e.strategies }

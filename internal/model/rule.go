package model

// Special dynamic rule shapes keyed by farm only.
const (
	RuleTypeBillToContainsAll = "bill_to_contains_all"
	RuleTypeBillToMatch       = "bill_to_match"
)

// DefaultRulePriority is assigned to synthesized rules.
const DefaultRulePriority = 100

// RuleEvidence links a dynamic rule back to the correction that produced it.
type RuleEvidence struct {
	DocID              string `json:"doc_id,omitempty"`
	ContentFingerprint string `json:"content_fingerprint,omitempty"`
	InvoiceKey         string `json:"invoice_key,omitempty"`
}

// DynamicRule is a reinforced attribution rule. Vendor+account rules carry
// RuleID; bill-to rules set Type and key by FarmKey or FarmID.
type DynamicRule struct {
	Type string `json:"type,omitempty"`

	// bill_to_contains_all
	Tokens []string `json:"tokens,omitempty"`
	// bill_to_match
	MatchText string `json:"match_text,omitempty"`
	FarmKey   string `json:"farm_key,omitempty"`

	RuleID                 string        `json:"rule_id,omitempty"`
	VendorKey              string        `json:"vendor_key,omitempty"`
	AccountNumber          string        `json:"account_number,omitempty"`
	InvoiceNumber          *string       `json:"invoice_number,omitempty"`
	ServiceAddressContains []string      `json:"service_address_contains,omitempty"`
	KeywordsAny            []string      `json:"keywords_any,omitempty"`
	FarmID                 string        `json:"farm_id,omitempty"`
	Priority               *int          `json:"priority,omitempty"`
	CreatedAt              string        `json:"created_at,omitempty"`
	Evidence               *RuleEvidence `json:"evidence,omitempty"`
}

// TargetFarm returns the farm a rule assigns to.
func (r DynamicRule) TargetFarm() string {
	if r.FarmKey != "" {
		return r.FarmKey
	}
	return r.FarmID
}

// EffectivePriority returns the declared priority or DefaultRulePriority.
func (r DynamicRule) EffectivePriority() int {
	if r.Priority == nil {
		return DefaultRulePriority
	}
	return *r.Priority
}

// HasDisambiguator reports whether the rule carries a service address or
// keyword clause in addition to vendor and account.
func (r DynamicRule) HasDisambiguator() bool {
	return len(r.ServiceAddressContains) > 0 || len(r.KeywordsAny) > 0
}

// RulesFile is the on-disk dynamic rules document.
type RulesFile struct {
	Version string        `json:"version"`
	Rules   []DynamicRule `json:"rules"`
}

// RulesFileVersion is written to new rules files.
const RulesFileVersion = "1.0"

// Package reinforce turns manual farm corrections into dynamic rule
// proposals.
package reinforce

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/normalize"
	"github.com/sells-group/farm-ledger/internal/rules"
)

// MaxProposals caps the proposals returned for one correction.
const MaxProposals = 3

var (
	accountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)account\s*(?:no|number|#)?\s*[:\-]?\s*([a-z0-9\-]{4,})`),
		regexp.MustCompile(`(?i)acct\s*[:\-]?\s*([a-z0-9\-]{4,})`),
	}
	addressHintRe  = regexp.MustCompile(`\b(?:rd|road|street|st|ave|blvd|ca)\b`)
	segmentSplitRe = regexp.MustCompile(`[,;]`)
	spacesRe       = regexp.MustCompile(`\s+`)
	farmTokenRe    = regexp.MustCompile(`[a-z0-9]{4,}`)
	billToTokenRe  = regexp.MustCompile(`[a-z0-9]{3,}`)

	genericFarmWords = map[string]bool{"farm": true, "farms": true, "expenses": true, "ranch": true}
)

// Correction is a manual farm assignment for one document.
type Correction struct {
	DocID    string
	FarmID   string
	FarmName string
	// Transaction holds whatever the ledger recorded for the document.
	Transaction model.Transaction
	// OCRText is the cached extraction text, used when the transaction
	// lacks vendor, account, or service address.
	OCRText string
}

// Synthesizer proposes dynamic rules from corrections.
type Synthesizer struct {
	Farms *model.FarmsConfig

	nowFunc func() time.Time
}

// NewSynthesizer returns a Synthesizer over the farm roster.
func NewSynthesizer(farms *model.FarmsConfig) *Synthesizer {
	return &Synthesizer{Farms: farms, nowFunc: time.Now}
}

// Propose returns up to MaxProposals rule candidates for c. existing and
// history feed collision detection. When the vendor/account pair has
// mapped to more than one farm, only proposals with a disambiguator are
// returned.
func (s *Synthesizer) Propose(c Correction, existing []model.DynamicRule, history []model.Transaction) []model.DynamicRule {
	tx := c.Transaction

	vendorKey := model.Str(tx.VendorKey)
	if vendorKey == "" {
		vendorKey = InferVendorKey(c.OCRText, s.Farms)
	}
	account := model.Str(tx.AccountNumber)
	if account == "" {
		account = ExtractAccountNumber(c.OCRText)
	}
	if vendorKey == "" || account == "" {
		return nil
	}
	serviceAddress := model.Str(tx.ServiceAddress)
	if serviceAddress == "" {
		serviceAddress = ExtractServiceAddressHint(c.OCRText)
	}

	collision := rules.CheckAccountCollision(vendorKey, account, s.Farms, existing, history)
	svc := ServiceDisambiguators(serviceAddress)
	kw := KeywordDisambiguators(c.FarmName, c.FarmID, c.OCRText)
	if collision && len(svc) == 0 && len(kw) == 0 {
		return nil
	}

	priority := model.DefaultRulePriority
	base := model.DynamicRule{
		VendorKey:     vendorKey,
		AccountNumber: account,
		InvoiceNumber: tx.InvoiceNumber,
		FarmID:        c.FarmID,
		Priority:      &priority,
		CreatedAt:     s.nowFunc().UTC().Format(time.RFC3339),
		Evidence: &model.RuleEvidence{
			DocID:              c.DocID,
			ContentFingerprint: model.Str(tx.ContentFingerprint),
			InvoiceKey:         model.Str(tx.InvoiceKey),
		},
	}

	var proposals []model.DynamicRule
	if len(svc) > 0 {
		p := base
		p.ServiceAddressContains = head(svc, 2)
		proposals = append(proposals, p)
	}
	if len(kw) > 0 {
		p := base
		p.KeywordsAny = head(kw, 3)
		proposals = append(proposals, p)
	}
	if len(proposals) == 0 && !collision {
		proposals = append(proposals, base)
	}

	if collision {
		kept := proposals[:0]
		for _, p := range proposals {
			if p.HasDisambiguator() {
				kept = append(kept, p)
			}
		}
		proposals = kept
	}

	proposals = head(proposals, MaxProposals)
	for i := range proposals {
		proposals[i].RuleID = rules.GenerateRuleID(proposals[i])
	}
	return proposals
}

// InferVendorKey picks the configured vendor whose distinct names and
// keywords (at least 3 characters) match the text most often. Ties return "".
func InferVendorKey(text string, farms *model.FarmsConfig) string {
	if farms == nil {
		return ""
	}
	lowered := normalize.Text(text)

	scores := make(map[string]int)
	var order []string
	for _, farm := range farms.Farms {
		for vk, vc := range farm.Vendors {
			terms := map[string]bool{}
			for _, t := range append([]string{vk, vc.Name}, vc.Keywords...) {
				if n := normalize.Text(t); utf8.RuneCountInString(n) >= 3 {
					terms[n] = true
				}
			}
			for term := range terms {
				if strings.Contains(lowered, term) {
					if _, seen := scores[vk]; !seen {
						order = append(order, vk)
					}
					scores[vk]++
				}
			}
		}
	}

	best, bestScore, tied := "", 0, false
	for _, vk := range order {
		switch sc := scores[vk]; {
		case sc > bestScore:
			best, bestScore, tied = vk, sc, false
		case sc == bestScore:
			tied = true
		}
	}
	if tied {
		return ""
	}
	return best
}

// ExtractAccountNumber finds an account number after "account" or "acct".
func ExtractAccountNumber(text string) string {
	lower := normalize.Text(text)
	for _, re := range accountPatterns {
		if m := re.FindStringSubmatch(lower); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// ExtractServiceAddressHint joins the first two lines that look like an
// address or a "service for" line.
func ExtractServiceAddressHint(text string) string {
	var hits []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lowered := normalize.Text(line)
		if strings.Contains(lowered, "service for") ||
			strings.Contains(lowered, "po box") ||
			addressHintRe.MatchString(lowered) {
			hits = append(hits, line)
		}
	}
	return strings.Join(head(hits, 2), ", ")
}

// ServiceDisambiguators splits a service address on commas and semicolons
// and keeps up to three distinct segments of at least 4 characters.
func ServiceDisambiguators(address string) []string {
	if address == "" {
		return nil
	}
	var out []string
	for _, seg := range segmentSplitRe.Split(normalize.Text(address), -1) {
		seg = strings.TrimSpace(spacesRe.ReplaceAllString(seg, " "))
		if utf8.RuneCountInString(seg) < 4 || containsStr(out, seg) {
			continue
		}
		out = append(out, seg)
	}
	return head(out, 3)
}

// KeywordDisambiguators returns up to three tokens from the farm's name and
// id that appear in the OCR text, skipping generic farm words.
func KeywordDisambiguators(farmName, farmID, ocrText string) []string {
	ocr := normalize.Text(ocrText)
	tokens := farmTokenRe.FindAllString(normalize.Text(farmName), -1)
	tokens = append(tokens, farmTokenRe.FindAllString(normalize.Text(farmID), -1)...)

	var out []string
	for _, tok := range tokens {
		if genericFarmWords[tok] || containsStr(out, tok) {
			continue
		}
		if strings.Contains(ocr, tok) {
			out = append(out, tok)
		}
	}
	return head(out, 3)
}

// BillToTokens extracts distinct lowercase tokens of at least 3 characters
// from the first maxChars characters of text, where the bill-to block sits.
func BillToTokens(text string, maxChars int) []string {
	r := []rune(text)
	if len(r) > maxChars {
		r = r[:maxChars]
	}
	var out []string
	seen := map[string]bool{}
	for _, w := range billToTokenRe.FindAllString(strings.ToLower(string(r)), -1) {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// Describe renders a proposal for confirmation prompts.
func Describe(p model.DynamicRule) string {
	var clause string
	switch {
	case len(p.ServiceAddressContains) > 0:
		clause = fmt.Sprintf(" AND service_address_contains=[%s]", strings.Join(p.ServiceAddressContains, ", "))
	case len(p.KeywordsAny) > 0:
		clause = fmt.Sprintf(" AND keywords_any=[%s]", strings.Join(p.KeywordsAny, ", "))
	}
	return fmt.Sprintf("vendor_key=%s AND account=%s%s -> %s (priority: %d)",
		p.VendorKey, p.AccountNumber, clause, p.FarmID, p.EffectivePriority())
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func containsStr(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

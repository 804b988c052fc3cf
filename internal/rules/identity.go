package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/normalize"
)

// GenerateRuleID derives a rule's id from its normalized vendor, account,
// farm, and sorted disambiguators. Invoice number and priority do not
// participate, so the same mapping proposed twice yields the same id.
func GenerateRuleID(r model.DynamicRule) string {
	parts := []string{
		normalize.Identifier(r.VendorKey),
		normalize.Identifier(r.AccountNumber),
		normalize.Identifier(r.FarmID),
		sortedNormalized(r.ServiceAddressContains),
		sortedNormalized(r.KeywordsAny),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "rule_" + hex.EncodeToString(sum[:])[:12]
}

func sortedNormalized(vals []string) string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = normalize.Text(v)
	}
	sort.Strings(out)
	return strings.Join(out, "|")
}

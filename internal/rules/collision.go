package rules

import (
	"strings"

	"github.com/sells-group/farm-ledger/internal/model"
	"github.com/sells-group/farm-ledger/internal/normalize"
)

// CheckAccountCollision reports whether the normalized (vendor, account)
// pair has been associated with more than one farm across the farm roster,
// the dynamic rules, and non-duplicate ledger transactions.
func CheckAccountCollision(vendorKey, accountNumber string, farms *model.FarmsConfig, rules []model.DynamicRule, txs []model.Transaction) bool {
	return len(FarmsForAccount(vendorKey, accountNumber, farms, rules, txs)) > 1
}

// FarmsForAccount returns the distinct farm ids mapped to the pair.
func FarmsForAccount(vendorKey, accountNumber string, farms *model.FarmsConfig, rules []model.DynamicRule, txs []model.Transaction) map[string]struct{} {
	vendor := normalize.Identifier(vendorKey)
	account := normalize.Identifier(accountNumber)
	ids := make(map[string]struct{})
	if vendor == "" || account == "" {
		return ids
	}

	add := func(id string) {
		if id = strings.TrimSpace(id); id != "" {
			ids[id] = struct{}{}
		}
	}

	if farms != nil {
		for _, farm := range farms.Farms {
			for vk, vc := range farm.Vendors {
				if normalize.Identifier(vk) != vendor {
					continue
				}
				values := append(append([]string{}, vc.Identifiers...), vc.Accounts...)
				for _, v := range values {
					if normalize.Identifier(v) == account {
						add(farm.ID)
						break
					}
				}
			}
		}
	}

	for _, r := range rules {
		if normalize.Identifier(r.VendorKey) == vendor && normalize.Identifier(r.AccountNumber) == account {
			add(r.FarmID)
		}
	}

	for _, tx := range txs {
		if tx.DuplicateDetected {
			continue
		}
		if normalize.Identifier(model.Str(tx.VendorKey)) == vendor &&
			normalize.Identifier(model.Str(tx.AccountNumber)) == account {
			add(model.Str(tx.FarmID))
		}
	}
	return ids
}

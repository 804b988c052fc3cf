package rules

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/farm-ledger/internal/atomicfile"
	"github.com/sells-group/farm-ledger/internal/model"
)

// FileStore persists dynamic rules as a versioned JSON document.
type FileStore struct {
	path string
	mu   sync.Mutex

	nowFunc func() time.Time
}

// NewFileStore returns a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, nowFunc: time.Now}
}

// Path returns the rules file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the rules file. A missing file, or one without a string
// version and a rules list, yields an empty document. Entries that are
// not objects are dropped. Malformed JSON is an error and the file is left
// untouched.
func (s *FileStore) Load() (*model.RulesFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileStore) load() (*model.RulesFile, error) {
	empty := &model.RulesFile{Version: model.RulesFileVersion, Rules: []model.DynamicRule{}}

	var raw map[string]json.RawMessage
	ok, err := atomicfile.ReadJSON(s.path, &raw)
	if err != nil {
		return nil, eris.Wrap(err, "rules: load")
	}
	if !ok {
		return empty, nil
	}

	var version string
	if err := json.Unmarshal(raw["version"], &version); err != nil {
		return empty, nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw["rules"], &entries); err != nil || entries == nil {
		return empty, nil
	}

	out := &model.RulesFile{Version: version, Rules: make([]model.DynamicRule, 0, len(entries))}
	for _, e := range entries {
		var r model.DynamicRule
		if err := json.Unmarshal(e, &r); err != nil {
			continue
		}
		out.Rules = append(out.Rules, r)
	}
	return out, nil
}

// Ensure makes sure the rules file exists with a valid shape and returns
// its contents.
func (s *FileStore) Ensure() (*model.RulesFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	if err := atomicfile.WriteJSON(s.path, doc); err != nil {
		return nil, eris.Wrap(err, "rules: ensure file")
	}
	return doc, nil
}

// Upsert adds r unless a rule with the same generated id exists. It
// returns whether a rule was created and the id either way.
func (s *FileStore) Upsert(r model.DynamicRule) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return false, "", err
	}

	id := GenerateRuleID(r)
	for _, existing := range doc.Rules {
		if existing.RuleID == id {
			return false, id, nil
		}
	}

	priority := r.EffectivePriority()
	record := model.DynamicRule{
		RuleID:                 id,
		VendorKey:              r.VendorKey,
		AccountNumber:          r.AccountNumber,
		InvoiceNumber:          r.InvoiceNumber,
		ServiceAddressContains: append([]string{}, r.ServiceAddressContains...),
		KeywordsAny:            append([]string{}, r.KeywordsAny...),
		FarmID:                 r.FarmID,
		Priority:               &priority,
		CreatedAt:              r.CreatedAt,
		Evidence:               r.Evidence,
	}
	if record.CreatedAt == "" {
		record.CreatedAt = s.nowFunc().UTC().Format(time.RFC3339)
	}
	if record.Evidence == nil {
		record.Evidence = &model.RuleEvidence{}
	}

	doc.Rules = append(doc.Rules, record)
	if err := atomicfile.WriteJSON(s.path, doc); err != nil {
		return false, "", eris.Wrap(err, "rules: write upsert")
	}
	return true, id, nil
}

// AppendBillToContainsAll adds a bill-to-contains-all rule for farmKey
// unless an equal rule (same farm, same token set) exists. It reports
// whether a rule was appended.
func (s *FileStore) AppendBillToContainsAll(farmKey string, tokens []string) (bool, error) {
	if farmKey == "" || len(tokens) == 0 {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return false, err
	}
	want := sortedCopy(tokens)
	for _, r := range doc.Rules {
		if r.Type == model.RuleTypeBillToContainsAll && r.FarmKey == farmKey &&
			strings.Join(sortedCopy(r.Tokens), "\x00") == strings.Join(want, "\x00") {
			return false, nil
		}
	}

	doc.Rules = append(doc.Rules, model.DynamicRule{
		Type:    model.RuleTypeBillToContainsAll,
		Tokens:  append([]string{}, tokens...),
		FarmKey: farmKey,
	})
	if err := atomicfile.WriteJSON(s.path, doc); err != nil {
		return false, eris.Wrap(err, "rules: write bill-to rule")
	}
	return true, nil
}

// AddBillToMatch adds a bill-to-match rule for farmKey unless the same
// normalized match text already maps to that farm.
func (s *FileStore) AddBillToMatch(farmKey, matchText string) (bool, error) {
	matchText = strings.TrimSpace(matchText)
	if farmKey == "" || matchText == "" {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return false, err
	}
	for _, r := range doc.Rules {
		if r.Type == model.RuleTypeBillToMatch && r.TargetFarm() == farmKey &&
			strings.EqualFold(strings.TrimSpace(r.MatchText), matchText) {
			return false, nil
		}
	}

	doc.Rules = append(doc.Rules, model.DynamicRule{
		Type:      model.RuleTypeBillToMatch,
		MatchText: matchText,
		FarmKey:   farmKey,
	})
	if err := atomicfile.WriteJSON(s.path, doc); err != nil {
		return false, eris.Wrap(err, "rules: write bill-to rule")
	}
	return true, nil
}

func sortedCopy(vals []string) []string {
	out := append([]string{}, vals...)
	sort.Strings(out)
	return out
}

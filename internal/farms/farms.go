// Package farms loads the farm roster used for attribution.
package farms

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/farm-ledger/internal/model"
)

// numberFields are the account-like lists that may sit beside identifiers.
var numberFields = []string{
	"account_numbers",
	"meter_numbers",
	"policy_numbers",
	"loan_numbers",
	"order_numbers",
	"customer_numbers",
}

// entry is one top-level key of the config document, in file order.
type entry struct {
	key string
	raw json.RawMessage
}

// Load reads a farms config from JSON or YAML (by extension). Two shapes
// are accepted: {"farms": [...]} and a flat {farm_id: {...}} map, which is
// converted to the former. Farm order follows the file.
func Load(path string) (*model.FarmsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(err, "farms: config not found: %s", path)
		}
		return nil, eris.Wrapf(err, "farms: read config %s", path)
	}

	var entries []entry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		entries, err = yamlEntries(data)
	default:
		entries, err = jsonEntries(data)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "farms: parse config %s", path)
	}
	return fromEntries(entries)
}

func fromEntries(entries []entry) (*model.FarmsConfig, error) {
	for _, e := range entries {
		if e.key == "farms" && isArray(e.raw) {
			return specFarms(e.raw)
		}
	}
	if len(entries) == 0 {
		return nil, eris.New("farms: invalid config: expected {\"farms\": [...]} or a flat map of farms")
	}
	return flatFarms(entries)
}

type specFarm struct {
	ID          string                     `json:"id"`
	FarmID      string                     `json:"farm_id"`
	Name        string                     `json:"name"`
	Identifiers []string                   `json:"identifiers"`
	Keywords    []string                   `json:"keywords"`
	Vendors     map[string]json.RawMessage `json:"vendors"`
}

type specVendor struct {
	Name        string   `json:"name"`
	Identifiers []string `json:"identifiers"`
	Keywords    []string `json:"keywords"`
}

func specFarms(raw json.RawMessage) (*model.FarmsConfig, error) {
	var in []specFarm
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, eris.Wrap(err, "farms: decode farms list")
	}

	cfg := &model.FarmsConfig{Farms: make([]model.Farm, 0, len(in))}
	for _, f := range in {
		id := f.ID
		if id == "" {
			id = f.FarmID
		}
		farm := model.Farm{
			ID:          id,
			Name:        f.Name,
			Identifiers: clean(f.Identifiers),
			Keywords:    clean(f.Keywords),
			Vendors:     make(map[string]model.VendorConfig, len(f.Vendors)),
		}
		for vk, vraw := range f.Vendors {
			var v specVendor
			if err := json.Unmarshal(vraw, &v); err != nil {
				// Non-object vendor entries carry no matching data.
				continue
			}
			farm.Vendors[vk] = model.VendorConfig{
				Name:        v.Name,
				Identifiers: clean(v.Identifiers),
				Keywords:    clean(v.Keywords),
				Accounts:    numberLists(vraw),
			}
		}
		cfg.Farms = append(cfg.Farms, farm)
	}
	return cfg, nil
}

type flatFarm struct {
	FarmID  any                        `json:"farm_id"`
	Name    string                     `json:"name"`
	Address string                     `json:"address"`
	APNs    []any                      `json:"apns"`
	Tagging map[string]json.RawMessage `json:"tagging"`
	Vendors map[string]json.RawMessage `json:"vendors"`
}

type flatVendor struct {
	Canonical string `json:"vendor_name_canonical"`
	Variants  []any  `json:"vendor_name_variants"`
}

func flatFarms(entries []entry) (*model.FarmsConfig, error) {
	cfg := &model.FarmsConfig{}
	for _, e := range entries {
		var f flatFarm
		if err := json.Unmarshal(e.raw, &f); err != nil || f.FarmID == nil {
			continue
		}

		var identifiers []string
		if a := strings.TrimSpace(f.Address); a != "" {
			identifiers = append(identifiers, a)
		}
		identifiers = append(identifiers, strs(f.APNs)...)
		for _, field := range numberFields {
			identifiers = append(identifiers, listField(f.Tagging, field)...)
		}
		keywords := append(listField(f.Tagging, "vendor_keywords"), listField(f.Tagging, "vendor_variants")...)

		vendors := make(map[string]model.VendorConfig, len(f.Vendors))
		for vk, vraw := range f.Vendors {
			var v flatVendor
			if err := json.Unmarshal(vraw, &v); err != nil {
				continue
			}
			vkeywords := strs(v.Variants)
			if c := strings.TrimSpace(v.Canonical); c != "" {
				vkeywords = append([]string{c}, vkeywords...)
			}
			name := v.Canonical
			if name == "" {
				name = vk
			}
			vendors[vk] = model.VendorConfig{
				Name:        name,
				Identifiers: numberLists(vraw),
				Keywords:    vkeywords,
			}
		}

		name := f.Name
		if name == "" {
			name = e.key
		}
		cfg.Farms = append(cfg.Farms, model.Farm{
			ID:          e.key,
			Name:        name,
			Identifiers: identifiers,
			Keywords:    keywords,
			Vendors:     vendors,
		})
	}
	return cfg, nil
}

// numberLists collects every account-like list from a vendor object.
func numberLists(raw json.RawMessage) []string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	var out []string
	for _, field := range numberFields {
		out = append(out, listField(fields, field)...)
	}
	return out
}

// listField decodes fields[key] as a list, ignoring values of other shapes.
func listField(fields map[string]json.RawMessage, key string) []string {
	r, ok := fields[key]
	if !ok {
		return nil
	}
	var vals []any
	if err := json.Unmarshal(r, &vals); err != nil {
		return nil
	}
	return strs(vals)
}

// strs stringifies non-empty scalar values; account numbers sometimes
// arrive as JSON numbers.
func strs(vals []any) []string {
	var out []string
	for _, v := range vals {
		var s string
		switch x := v.(type) {
		case nil:
			continue
		case string:
			s = x
		case float64:
			s = strconv.FormatFloat(x, 'f', -1, 64)
		default:
			b, _ := json.Marshal(x)
			s = string(b)
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clean(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func isArray(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '['
}

func jsonEntries(data []byte) ([]entry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, eris.New("farms: top level must be an object")
	}

	var entries []entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		entries = append(entries, entry{key: key, raw: raw})
	}
	return entries, nil
}

func yamlEntries(data []byte) ([]entry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, eris.New("farms: top level must be a mapping")
	}

	entries := make([]entry, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		var val any
		if err := root.Content[i+1].Decode(&val); err != nil {
			return nil, err
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{key: root.Content[i].Value, raw: raw})
	}
	return entries, nil
}

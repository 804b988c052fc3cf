package parser

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sells-group/farm-ledger/internal/model"
)

const previewLimit = 300

// decodeObject parses model output into a JSON object, tolerating markdown
// fences and prose around the object.
func decodeObject(raw string) (map[string]any, *ParseError) {
	if strings.TrimSpace(raw) == "" {
		return nil, newParseError(CategoryEmpty, raw, "model returned empty response")
	}

	cleaned := stripFences(strings.TrimSpace(raw))
	v, err := decode(cleaned)
	if err == nil {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, newParseError(CategoryInvalidJSON, raw, "top-level JSON must be an object")
		}
		return obj, nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end < start {
		return nil, newParseError(CategoryNoJSON, raw, "no JSON object found in model output")
	}
	v, err = decode(cleaned[start : end+1])
	if err != nil {
		return nil, newParseError(CategoryInvalidJSON, raw, "invalid JSON after cleanup: "+err.Error())
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, newParseError(CategoryInvalidJSON, raw, "top-level JSON must be an object")
	}
	return obj, nil
}

func decode(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, &json.SyntaxError{Offset: dec.InputOffset()}
	}
	return v, nil
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), "```") {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func newParseError(category, raw, detail string) *ParseError {
	return &ParseError{Category: category, Detail: detail, Preview: preview(raw, previewLimit)}
}

func preview(text string, limit int) string {
	compact := strings.NewReplacer("\r", `\r`, "\n", `\n`).Replace(text)
	compact = strings.TrimSpace(compact)
	if len(compact) <= limit {
		return compact
	}
	return compact[:limit] + "...(truncated)"
}

// toPayload maps a decoded object onto the payload schema. Strings are
// trimmed and empty strings become nil. The total keeps its raw form so
// the validator sees exactly what the model emitted.
func toPayload(obj map[string]any) *model.InvoicePayload {
	p := &model.InvoicePayload{
		VendorName:     stringField(obj["vendor_name"]),
		InvoiceNumber:  stringField(obj["invoice_number"]),
		InvoiceDate:    stringField(obj["invoice_date"]),
		DueDate:        stringField(obj["due_date"]),
		ServiceAddress: stringField(obj["service_address"]),
		AccountNumber:  stringField(obj["account_number"]),
	}

	if raw, ok := obj["total_amount"]; ok && raw != nil {
		p.RawTotal = raw
		p.TotalAmount = floatField(raw)
	}

	if items, ok := obj["line_items"].([]any); ok {
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			desc := stringField(m["description"])
			if desc == nil {
				continue
			}
			p.LineItems = append(p.LineItems, model.LineItem{Description: *desc, Amount: floatField(m["amount"])})
		}
	}
	return p
}

func stringField(v any) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = t
	case json.Number:
		s = t.String()
	case bool:
		s = strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		s = string(bytes.TrimSpace(b))
	}
	return model.StrPtr(strings.TrimSpace(s))
}

func floatField(v any) *float64 {
	var f float64
	var err error
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	case float64:
		f = t
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return &f
}

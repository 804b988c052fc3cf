package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/farm-ledger/internal/model"
)

func TestPrintOutcome(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printOutcome(&buf, model.Outcome{
		File: "a.pdf", Status: model.OutcomeFailed, Stage: "parse", Reason: "llm_parsing_failed", Code: "no-json",
	}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "failed", got["status"])
	assert.Equal(t, "no-json", got["code"])
	assert.NotContains(t, got, "duplicate_of")
}

func TestFormatSummary(t *testing.T) {
	s := &model.Summary{}
	s.Add(model.Outcome{File: "a.pdf", Status: model.OutcomeSuccess, FarmID: "north"})
	s.Add(model.Outcome{File: "b.pdf", Status: model.OutcomeSkippedDuplicate, DuplicateOf: "doc-1", DuplicateBasis: "content_fingerprint"})
	s.Add(model.Outcome{File: "c.pdf", Status: model.OutcomeFailed, Reason: "validation_failed", Code: "zero_amount"})

	var buf bytes.Buffer
	formatSummary(&buf, s)
	out := buf.String()

	assert.Contains(t, out, "FILE")
	assert.Contains(t, out, "north")
	assert.Contains(t, out, "duplicate of doc-1 (content_fingerprint)")
	assert.Contains(t, out, "validation_failed: zero_amount")
	assert.Contains(t, out, "Total: 3  Auto: 1  Manual: 0  Duplicate: 1  Failed: 1")
}

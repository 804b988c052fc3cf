package model

// Outcome statuses reported for a single processed document.
const (
	OutcomeSuccess          = "success"
	OutcomeManualReview     = "manual_review"
	OutcomeSkippedDuplicate = "skipped_duplicate"
	OutcomeDuplicate        = "duplicate"
	OutcomeFailed           = "failed"
)

// Outcome is the structured result of processing one document.
type Outcome struct {
	File           string   `json:"file"`
	DocID          string   `json:"doc_id,omitempty"`
	Status         string   `json:"status"`
	Stage          string   `json:"stage,omitempty"`
	Reason         string   `json:"reason,omitempty"`
	Code           string   `json:"code,omitempty"`
	FarmID         string   `json:"farm_id,omitempty"`
	Confidence     *float64 `json:"confidence,omitempty"`
	InvoiceKey     string   `json:"invoice_key,omitempty"`
	DuplicateOf    string   `json:"duplicate_of,omitempty"`
	DuplicateBasis string   `json:"duplicate_basis,omitempty"`
	OutputPath     string   `json:"output_path,omitempty"`
}

// Succeeded reports whether the outcome should exit zero in single mode.
func (o Outcome) Succeeded() bool {
	switch o.Status {
	case OutcomeSuccess, OutcomeManualReview, OutcomeSkippedDuplicate, OutcomeDuplicate:
		return true
	default:
		return false
	}
}

// Summary aggregates batch outcomes.
type Summary struct {
	Total     int       `json:"total"`
	Auto      int       `json:"auto"`
	Manual    int       `json:"manual"`
	Duplicate int       `json:"duplicate"`
	Failed    int       `json:"failed"`
	Outcomes  []Outcome `json:"outcomes"`
}

// Add folds an outcome into the summary.
func (s *Summary) Add(o Outcome) {
	s.Total++
	switch o.Status {
	case OutcomeSuccess:
		s.Auto++
	case OutcomeManualReview:
		s.Manual++
	case OutcomeSkippedDuplicate, OutcomeDuplicate:
		s.Duplicate++
	default:
		s.Failed++
	}
	s.Outcomes = append(s.Outcomes, o)
}

package pipeline

import "fmt"

// Stages, in processing order. A document's failure is tagged with the
// stage it failed in.
const (
	StageValidate    = "validate_path"
	StageExtract     = "extract"
	StageFingerprint = "fingerprint"
	StageClassify    = "classify"
	StageParse       = "parse"
	StageFinalize    = "finalize"
)

// Failure and duplicate reasons reported on outcomes and stored as the
// prefix of failed transactions' failure_reason.
const (
	ReasonPathValidation              = "path_validation"
	ReasonVisionExtractionFailed      = "vision_extraction_failed"
	ReasonEmptyExtraction             = "empty_extraction"
	ReasonFarmTaggingFailed           = "farm_tagging_failed"
	ReasonLLMParsingFailed            = "llm_parsing_failed"
	ReasonValidationFailed            = "validation_failed"
	ReasonInvoiceKeyDuplicate         = "invoice_key_duplicate"
	ReasonContentFingerprintDuplicate = "content_fingerprint_duplicate"
	ReasonUnexpected                  = "unexpected_error"
)

// StageError is a failure attributed to one pipeline stage.
type StageError struct {
	Stage  string
	Reason string
	// Code refines Reason, e.g. the validator's missing_required_field.
	Code string
	Err  error
}

func (e *StageError) Error() string {
	msg := e.Reason
	if e.Code != "" {
		msg += "(" + e.Code + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("pipeline: %s: %s: %v", e.Stage, msg, e.Err)
	}
	return fmt.Sprintf("pipeline: %s: %s", e.Stage, msg)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage, reason string, err error) *StageError {
	return &StageError{Stage: stage, Reason: reason, Err: err}
}

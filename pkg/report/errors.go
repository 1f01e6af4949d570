package report

import "errors"

// Stable request-validation error codes, spec.md §4.K step 1.
const (
	CodeCustomFrameworkRequired = "CUSTOM_FRAMEWORK_REQUIRED"
	CodeUnknownFramework        = "UNKNOWN_FRAMEWORK"
	CodeInvalidPeriod           = "INVALID_PERIOD"
	CodeInvalidEvidenceCap      = "INVALID_EVIDENCE_CAP"
	CodeInvalidFieldValue       = "INVALID_FIELD_VALUE"
)

// ValidationError mirrors pkg/policy's stable-code validation error
// shape for report requests.
type ValidationError struct {
	Code    string
	Message string
}

func (e ValidationError) Error() string { return e.Code + ": " + e.Message }

var (
	ErrReportNotFound  = errors.New("report: not found")
	ErrVersionNotFound = errors.New("report: version not found")
	ErrNotSigned       = errors.New("report: not signed")
)

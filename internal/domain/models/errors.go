package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDataGap is returned when the requested range holds no bars.
var ErrDataGap = errors.New("no bars in requested range")

// ErrRunNotFound is returned when a run id is unknown to the result store.
var ErrRunNotFound = errors.New("backtest run not found")

// ErrTradeNotFound is returned when a trade index is outside a run's trade list.
var ErrTradeNotFound = errors.New("trade not found")

// ErrServiceUnavailable is returned when a remote collaborator is down or its breaker is open.
var ErrServiceUnavailable = errors.New("service unavailable")

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError rejects a malformed strategy before any bar is scanned.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "invalid strategy: " + strings.Join(parts, "; ")
}

// Suggestion is a concrete rewrite for an expression that failed to resolve.
type Suggestion struct {
	Rule        string `json:"rule"`
	Replacement string `json:"replacement,omitempty"`
	Message     string `json:"message"`
}

// ResolutionError is raised when a condition expression cannot be resolved against the bar data.
type ResolutionError struct {
	Expression string
	Token      string
	Reason     string
	Suggestion *Suggestion
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("cannot resolve %q in %q: %s", e.Token, e.Expression, e.Reason)
	if e.Suggestion != nil {
		msg += " (" + e.Suggestion.Message + ")"
	}
	return msg
}

type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeResolution  ErrorType = "resolution"
	ErrorTypeDataGap     ErrorType = "data_gap"
	ErrorTypeComputation ErrorType = "computation"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// FailureRecord is a structured, deduplicated description of something that went wrong during a run.
type FailureRecord struct {
	ErrorType        ErrorType `json:"error_type"`
	Message          string    `json:"message"`
	FailedExpression string    `json:"failed_expression,omitempty"`
	SuggestedFix     string    `json:"suggested_fix,omitempty"`
	Severity         Severity  `json:"severity"`
	Occurrences      int       `json:"occurrences"`
	FirstSeen        time.Time `json:"first_seen,omitempty"`
}

// FailureFromError classifies err into a FailureRecord.
func FailureFromError(err error) FailureRecord {
	var resErr *ResolutionError
	var valErr *ValidationError
	switch {
	case errors.As(err, &resErr):
		rec := FailureRecord{
			ErrorType:        ErrorTypeResolution,
			Message:          resErr.Error(),
			FailedExpression: resErr.Expression,
			Severity:         SeverityWarning,
			Occurrences:      1,
		}
		if resErr.Suggestion != nil {
			rec.SuggestedFix = resErr.Suggestion.Message
		}
		return rec
	case errors.As(err, &valErr):
		return FailureRecord{ErrorType: ErrorTypeValidation, Message: valErr.Error(), Severity: SeverityError, Occurrences: 1}
	case errors.Is(err, ErrDataGap):
		return FailureRecord{ErrorType: ErrorTypeDataGap, Message: err.Error(), Severity: SeverityInfo, Occurrences: 1}
	default:
		return FailureRecord{ErrorType: ErrorTypeComputation, Message: err.Error(), Severity: SeverityError, Occurrences: 1}
	}
}

package models

import (
	"errors"
	"fmt"
)

// Failure kinds produced by the fetch and extraction pipeline. These are
// signals for the orchestrator, not fatal conditions: every one of them is
// recorded on the vendor outcome and the batch continues.
const (
	// Fetch failures.
	ErrCodeNavTimeout   = "NAVIGATION_TIMEOUT"
	ErrCodeNavFailed    = "NAVIGATION_FAILED"
	ErrCodeEmptyContent = "EMPTY_CONTENT"

	// Primary (LLM) extraction failures. All of them trigger the fallback
	// extractor rather than aborting the scrape.
	ErrCodeLLMAuth        = "LLM_AUTH_FAILURE"
	ErrCodeLLMQuota       = "LLM_QUOTA_EXCEEDED"
	ErrCodeLLMRateLimited = "LLM_RATE_LIMITED"
	ErrCodeLLMTransport   = "LLM_TRANSPORT_FAILURE"
	ErrCodeLLMEmpty       = "LLM_EMPTY_RESPONSE"
	ErrCodeLLMUnparsable  = "LLM_UNPARSABLE_RESPONSE"

	// Validation failure on would-be persistence.
	ErrCodeInvalidData = "INVALID_OBSERVATION_DATA"
)

// ScrapeError carries a failure kind alongside the message. It implements
// the error interface and supports wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a ScrapeError with the given failure kind.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ErrorCode extracts the failure kind from err, or empty if err is not a
// ScrapeError.
func ErrorCode(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

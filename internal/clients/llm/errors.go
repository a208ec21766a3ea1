package llm

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	// Transient: consume a retry slot and try the same model again.
	KindRateLimited ErrorKind = "rate_limited"
	KindUnavailable ErrorKind = "unavailable"

	// Permanent: abort this model candidate.
	KindBadRequest ErrorKind = "bad_request"
	KindOther      ErrorKind = "other"

	// Terminal: abort the whole operation, no candidate will fare better.
	KindCreditsExhausted ErrorKind = "credits_exhausted"
)

type ProviderError struct {
	Kind       ErrorKind
	Model      string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (http %d)", msg, e.StatusCode)
	}
	if e.Model != "" {
		msg = fmt.Sprintf("%s model=%s", msg, e.Model)
	}
	if e.Err != nil {
		return fmt.Sprintf("llm: %s: %v", msg, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("llm: %s: %s", msg, e.Body)
	}
	return "llm: " + msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Transient() bool {
	return e != nil && (e.Kind == KindRateLimited || e.Kind == KindUnavailable)
}

// AsProviderError unwraps err into a *ProviderError; unclassified errors
// come back wrapped as KindOther so callers can apply policy uniformly.
func AsProviderError(err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &ProviderError{Kind: KindOther, Err: err}
}

// Classify maps an HTTP status (plus response body hints for quota
// exhaustion, which some providers report as 402 and others as 429 with a
// distinctive message) onto the retry-vs-fallback-vs-abort taxonomy.
func Classify(status int, body string) ErrorKind {
	lower := strings.ToLower(body)
	if status == 402 || strings.Contains(lower, "insufficient_quota") || strings.Contains(lower, "included credits") {
		return KindCreditsExhausted
	}
	switch status {
	case 429:
		return KindRateLimited
	case 502, 503, 504:
		return KindUnavailable
	case 400, 404, 422:
		return KindBadRequest
	default:
		return KindOther
	}
}

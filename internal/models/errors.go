package models

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies crawl failures
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindPolicyDenied    Kind = "policy_denied"
	KindTransientFetch  Kind = "transient_fetch"
	KindContentRejected Kind = "content_rejected"
	KindParseDegraded   Kind = "parse_degraded"
	KindStorageFailed   Kind = "storage_failed"
	KindPageFailed      Kind = "page_failed"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrPolicyDenied    = errors.New("denied by crawl policy")
	ErrTransientFetch  = errors.New("transient fetch error")
	ErrContentRejected = errors.New("content rejected")
	ErrParseDegraded   = errors.New("conversion degraded")
	ErrStorageFailed   = errors.New("storage failed")
	ErrPageFailed      = errors.New("page failed")

	// ErrContentTooLarge is the ContentRejected case for bodies over the size limit.
	ErrContentTooLarge = fmt.Errorf("%w: content too large", ErrContentRejected)
)

var kindSentinels = map[Kind]error{
	KindInvalidInput:    ErrInvalidInput,
	KindPolicyDenied:    ErrPolicyDenied,
	KindTransientFetch:  ErrTransientFetch,
	KindContentRejected: ErrContentRejected,
	KindParseDegraded:   ErrParseDegraded,
	KindStorageFailed:   ErrStorageFailed,
	KindPageFailed:      ErrPageFailed,
}

// CrawlError is a classified failure tied to a URL.
type CrawlError struct {
	Kind   Kind
	URL    string
	Reason string
	Err    error
}

// NewCrawlError builds a CrawlError.
func NewCrawlError(kind Kind, rawURL, reason string, err error) *CrawlError {
	return &CrawlError{Kind: kind, URL: rawURL, Reason: reason, Err: err}
}

func (e *CrawlError) Error() string {
	msg := string(e.Kind)
	if e.URL != "" {
		msg += " " + e.URL
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CrawlError) Unwrap() error { return e.Err }

// Is matches the sentinel error of the CrawlError's kind.
func (e *CrawlError) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && sentinel == target
}

// KindOf returns the Kind of err, or KindPageFailed when err is not classified.
func KindOf(err error) Kind {
	var ce *CrawlError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	for kind, sentinel := range kindSentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindPageFailed
}

// HTTPStatusError reports a non-2xx response.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Retryable reports whether the status is worth another attempt (429 and 5xx).
func (e *HTTPStatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

package fetch

import (
	"fmt"
	"net/http"
)

// TransportError reports a failed request or a broken response stream.
type TransportError struct {
	URL        string
	StatusCode int         // 0 if no response was received
	Header     http.Header // response headers, if any
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ExtractionError reports a malformed archive or a failed write while
// extracting.
type ExtractionError struct {
	Entry string // archive entry name, empty for stream-level failures
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("extract %s: %v", e.Entry, e.Err)
	}
	return fmt.Sprintf("extract: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ChecksumError reports a SHA-256 mismatch for a downloaded stream.
type ChecksumError struct {
	URL      string
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s:\nactual:   %s\nexpected: %s", e.URL, e.Actual, e.Expected)
}

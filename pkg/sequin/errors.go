package sequin

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"syscall"
)

const unknownErrorSummary = "Unknown error"

// Error is the normalized failure returned by every client operation.
type Error struct {
	Status  int    `json:"status"`
	Summary string `json:"summary"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("sequin: status %d: %s", e.Status, e.Summary)
}

// AsError converts err into a *Error. Errors that did not originate from the
// client are reported with status 500. A nil err yields nil.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var serr *Error
	if errors.As(err, &serr) {
		return serr
	}
	return &Error{Status: http.StatusInternalServerError, Summary: err.Error()}
}

func newError(status int, summary string) *Error {
	if strings.TrimSpace(summary) == "" {
		summary = unknownErrorSummary
	}
	return &Error{Status: status, Summary: summary}
}

// transportError maps a failed round trip to a *Error, replacing connection
// refusals with a hint naming the configured base URL.
func transportError(baseURL string, err error) *Error {
	if isConnectionRefused(err) {
		return &Error{
			Status:  http.StatusInternalServerError,
			Summary: unreachableSummary(baseURL),
		}
	}
	return &Error{Status: http.StatusInternalServerError, Summary: err.Error()}
}

func unreachableSummary(baseURL string) string {
	return fmt.Sprintf("We can't reach Sequin on %s. Double check that Sequin is running and confirm your Go client is configured properly", baseURL)
}

func isConnectionRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

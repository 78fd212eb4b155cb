package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"kabutune/internal/platform"
)

// ErrResponseStarted marks failures that happened after the status line was
// sent. Callers must not write anything else to the response.
var ErrResponseStarted = errors.New("response already started")

// FailureKind is the category of one failed attempt.
type FailureKind int

const (
	KindUpstream FailureKind = iota
	KindRateLimited
	KindNotFound
	KindCanceled
)

func (k FailureKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindCanceled:
		return "canceled"
	default:
		return "upstream"
	}
}

func kindOf(err error) FailureKind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	err = platform.Classify(err)
	switch {
	case errors.Is(err, platform.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, platform.ErrNotFound):
		return KindNotFound
	default:
		return KindUpstream
	}
}

// AttemptError captures one failed step of the fallback chain.
type AttemptError struct {
	Step    string
	Source  string
	Profile string
	Kind    FailureKind
	Err     error
}

func (e AttemptError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s via %s", e.Step, e.Source)
	if e.Profile != "" {
		fmt.Fprintf(&b, " (%s profile)", e.Profile)
	}
	fmt.Fprintf(&b, ": %s: %v", e.Kind, e.Err)
	return b.String()
}

func (e AttemptError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when every step of the chain failed before
// anything was written.
type ExhaustedError struct {
	Attempts []AttemptError
}

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return "all audio sources failed"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = a.Error()
	}
	return fmt.Sprintf("all audio sources failed: %d attempt(s): %s", len(e.Attempts), strings.Join(parts, "; "))
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a
	}
	return errs
}

// Status is 404 when every attempt found no audio, 429 when the last attempt
// was rate limited and 500 otherwise.
func (e *ExhaustedError) Status() int {
	if len(e.Attempts) == 0 {
		return http.StatusInternalServerError
	}
	allNotFound := true
	for _, a := range e.Attempts {
		if a.Kind != KindNotFound {
			allNotFound = false
			break
		}
	}
	if allNotFound {
		return http.StatusNotFound
	}
	if e.Attempts[len(e.Attempts)-1].Kind == KindRateLimited {
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// StatusOf maps an error returned by Serve to the HTTP status to answer.
func StatusOf(err error) int {
	var exhausted *ExhaustedError
	switch {
	case errors.Is(err, platform.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &exhausted):
		return exhausted.Status()
	default:
		return http.StatusInternalServerError
	}
}

// MessageOf returns the client-facing message for an error returned by
// Serve. It never includes upstream details.
func MessageOf(err error) string {
	switch StatusOf(err) {
	case http.StatusBadRequest:
		return "Invalid video ID"
	case http.StatusNotFound:
		return "No audio format available"
	case http.StatusTooManyRequests:
		return "Upstream rate limit reached, try again later"
	default:
		return "Failed to stream audio"
	}
}

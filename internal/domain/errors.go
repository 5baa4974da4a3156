package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingUserID is returned when an aggregation is requested without a user.
	ErrMissingUserID = errors.New("user id is required")
	// ErrMissingSource indicates a Sources bundle with a nil adapter.
	ErrMissingSource = errors.New("data source not configured")
	// ErrProfileNotFound is returned by profile sources with no record for the user.
	ErrProfileNotFound = errors.New("profile not found")
)

// AdapterError reports the failure of one named source.
type AdapterError struct {
	Source Source
	Err    error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// AggregationError wraps every adapter failure observed by one aggregation.
type AggregationError struct {
	UserID   string
	Failures []*AdapterError
}

func (e *AggregationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("aggregation for user %s failed: %s", e.UserID, strings.Join(parts, "; "))
}

// Unwrap exposes the adapter failures to errors.Is and errors.As.
func (e *AggregationError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f)
	}
	return out
}

// Failed reports whether the named source is among the failures.
func (e *AggregationError) Failed(source Source) bool {
	for _, f := range e.Failures {
		if f.Source == source {
			return true
		}
	}
	return false
}

package resource

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrUnresolvablePath = errors.New("unresolvable path")
	ErrMethodNotAllowed = errors.New("method not allowed")
	ErrNotFound         = errors.New("not found")
	ErrBadRequest       = errors.New("bad request")
)

// PathError is a path that does not resolve to exactly one resource. Status is
// 404 when nothing matches a segment or type, 400 for illegal combinations.
type PathError struct {
	Status  int
	Segment string
	Reason  string
}

func (e *PathError) Error() string {
	if e.Segment == "" {
		return fmt.Sprintf("unresolvable path: %s", e.Reason)
	}
	return fmt.Sprintf("unresolvable path at %q: %s", e.Segment, e.Reason)
}

func (e *PathError) Unwrap() error { return ErrUnresolvablePath }

func notFoundPath(segment, reason string) *PathError {
	return &PathError{Status: http.StatusNotFound, Segment: segment, Reason: reason}
}

func illegalPath(segment, reason string) *PathError {
	return &PathError{Status: http.StatusBadRequest, Segment: segment, Reason: reason}
}

// MethodError is a verb the resolved resource does not support.
type MethodError struct {
	Method string
	Allow  []string
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("method %s not allowed, use one of %s", e.Method, strings.Join(e.Allow, ", "))
}

func (e *MethodError) Unwrap() error { return ErrMethodNotAllowed }

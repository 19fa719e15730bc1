package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Closed set of error kinds for this subsystem. Callers branch with
// errors.Is, never on message text.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("resource conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrStorage      = errors.New("storage failure")
	ErrDecode       = errors.New("token decode failed")
)

// ValidationError carries field-level messages for 422 responses.
type ValidationError struct {
	Fields map[string][]string
}

// Add appends a message for the given field.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// Empty reports whether no field errors were recorded.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	if e.Empty() {
		return "validation failed"
	}
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fmt.Sprintf("validation failed: %s", strings.Join(fields, ", "))
}

func unauthorized(message string) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, message)
}

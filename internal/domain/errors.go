package domain

import (
	"fmt"
	"strings"
)

// ConnectionError means the store could not be reached or rejected our
// credentials. It is fatal to the current action, never retried.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("store connection failed: %v", e.Err)
	}
	return fmt.Sprintf("store connection failed during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every required annotation field that is missing or
// invalid, in form order.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.FieldNames(), ", ")
}

func (e *ValidationError) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return names
}

func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// WriteError carries the store's rejection of an insert. Message is the
// store-reported text, shown to the user as is.
type WriteError struct {
	Message string
	Err     error
}

func (e *WriteError) Error() string {
	return "Error inserting values: " + e.Message
}

func (e *WriteError) Unwrap() error { return e.Err }

// Package errs defines the error taxonomy shared by the document model, the
// store and the synchronization core.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write collides with an existing record.
	ErrConflict = errors.New("conflict")
	// ErrRetriesExhausted is returned when a busy/locked store never freed up.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// ValidationError represents malformed or missing required input.
// It is local to the call and never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError with a formatted message.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ParseError reports a document header that is not well-formed structured data.
type ParseError struct {
	Path string
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	loc := e.Path
	if loc == "" {
		loc = "<document>"
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %v", loc, e.Line, e.Err)
	}
	return fmt.Sprintf("parse error in %s: %v", loc, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DatabaseError reports a constraint violation, a missing record or an
// exhausted retry, with enough context to identify the offending entity.
type DatabaseError struct {
	Op     string
	Entity string
	Key    any
	Err    error
}

func (e *DatabaseError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("database error: %s %s %v: %v", e.Op, e.Entity, e.Key, e.Err)
	}
	return fmt.Sprintf("database error: %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// NotFound returns a DatabaseError wrapping ErrNotFound.
func NotFound(entity string, key any) error {
	return &DatabaseError{Op: "get", Entity: entity, Key: key, Err: ErrNotFound}
}

// Database wraps err as a DatabaseError. A nil err stays nil.
func Database(op, entity string, key any, err error) error {
	if err == nil {
		return nil
	}
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return err
	}
	return &DatabaseError{Op: op, Entity: entity, Key: key, Err: err}
}

// WrapError wraps an error with additional context.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsParse reports whether err is (or wraps) a ParseError.
func IsParse(err error) bool {
	var p *ParseError
	return errors.As(err, &p)
}

// IsDatabase reports whether err is (or wraps) a DatabaseError.
func IsDatabase(err error) bool {
	var d *DatabaseError
	return errors.As(err, &d)
}

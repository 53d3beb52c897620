// Package domain defines the feature-store data model, the store ports, and the
// error taxonomy shared by the marshaling layer and its collaborators.
package domain

import (
	"fmt"
)

// SchemaError indicates the layer schema cannot serve the request: a missing
// field or domain, or an ambiguous geometry column name. Never recovered.
type SchemaError struct {
	Message string
}

func (e *SchemaError) Error() string { return e.Message }

// ValidationError indicates invalid input for a write: an unmapped key, a type
// mismatch, or a null against a non-nullable field.
type ValidationError struct {
	Message string
	Field   string // empty when not field specific
	Row     int    // -1 when not row specific
}

func (e *ValidationError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("row %d: %s", e.Row, e.Message)
	}
	return e.Message
}

// GeometryErrorKind classifies a geometry parse failure.
type GeometryErrorKind int

const (
	GeomErrCorruptData GeometryErrorKind = iota
	GeomErrInsufficientData
	GeomErrUnsupportedType
)

func (k GeometryErrorKind) String() string {
	switch k {
	case GeomErrInsufficientData:
		return "insufficient data"
	case GeomErrUnsupportedType:
		return "unsupported geometry type"
	default:
		return "corrupt data"
	}
}

// GeometryParseError indicates WKB or WKT input that the geometry library
// could not decode.
type GeometryParseError struct {
	Kind  GeometryErrorKind
	Field string
	Row   int
	Err   error
}

func (e *GeometryParseError) Error() string {
	msg := fmt.Sprintf("geometry field %q: %s", e.Field, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Row >= 0 {
		return fmt.Sprintf("row %d: %s", e.Row, msg)
	}
	return msg
}

func (e *GeometryParseError) Unwrap() error { return e.Err }

// StoreError wraps a failure reported by the feature store, carrying the
// store's own diagnostic text.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return e.Op + " failed"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error { return e.Err }

// StaleCountWarning reports that the store's feature count was lower than
// the number of features the cursor actually produced. Materialization still
// returns the rows that were read.
type StaleCountWarning struct {
	Layer    string
	Reported int64
}

func (e *StaleCountWarning) Error() string {
	return fmt.Sprintf("layer %q: more features available than the reported count %d", e.Layer, e.Reported)
}

// NotFoundError indicates a layer, feature or domain does not exist.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError indicates a duplicate layer, field or domain.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrSchema creates a SchemaError with a formatted message.
func ErrSchema(format string, args ...interface{}) *SchemaError {
	return &SchemaError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Row: -1}
}

// ErrFieldValidation creates a ValidationError bound to a field and row.
func ErrFieldValidation(field string, row int, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...), Field: field, Row: row}
}

// ErrStore creates a StoreError for the named operation.
func ErrStore(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

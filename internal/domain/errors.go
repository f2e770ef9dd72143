// Package domain defines the record model and the error taxonomy shared by the
// schema resolver, the codec and the NocoDB client.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SchemaErrorKind classifies a failed name lookup or schema discovery.
type SchemaErrorKind string

// Schema error kinds.
const (
	KindUnknownTable         SchemaErrorKind = "unknown_table"
	KindUnknownLinkField     SchemaErrorKind = "unknown_link_field"
	KindNoLinkFieldsForTable SchemaErrorKind = "no_link_fields_for_table"
	KindUnknownView          SchemaErrorKind = "unknown_view"
	KindNoViewsForTable      SchemaErrorKind = "no_views_for_table"
	KindNoTablesDiscovered   SchemaErrorKind = "no_tables_discovered"
	KindInvalidDocument      SchemaErrorKind = "invalid_document"
)

// SchemaError indicates that a table, field or view name could not be resolved,
// or that the schema itself could not be built. Available lists the valid
// alternatives for the failed lookup.
type SchemaError struct {
	Kind      SchemaErrorKind
	Message   string
	Available []string
}

func (e *SchemaError) Error() string { return e.Message }

// Is matches any SchemaError of the same kind, so the sentinels below work
// with errors.Is.
func (e *SchemaError) Is(target error) bool {
	t, ok := target.(*SchemaError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrUnknownTable         = &SchemaError{Kind: KindUnknownTable, Message: "unknown table"}
	ErrUnknownLinkField     = &SchemaError{Kind: KindUnknownLinkField, Message: "unknown link field"}
	ErrNoLinkFieldsForTable = &SchemaError{Kind: KindNoLinkFieldsForTable, Message: "table has no link fields"}
	ErrUnknownView          = &SchemaError{Kind: KindUnknownView, Message: "unknown view"}
	ErrNoViewsForTable      = &SchemaError{Kind: KindNoViewsForTable, Message: "table has no views"}
	ErrNoTablesDiscovered   = &SchemaError{Kind: KindNoTablesDiscovered, Message: "no tables discovered"}
	ErrInvalidDocument      = &SchemaError{Kind: KindInvalidDocument, Message: "invalid API description document"}
)

// ErrSchema creates a SchemaError whose message ends with the quoted list of
// available names.
func ErrSchema(kind SchemaErrorKind, available []string, format string, args ...interface{}) *SchemaError {
	msg := fmt.Sprintf(format, args...)
	if available != nil {
		msg = fmt.Sprintf("%s (available: %s)", msg, quoteList(available))
	}
	return &SchemaError{Kind: kind, Message: msg, Available: available}
}

// InputErrorKind classifies structurally invalid caller input.
type InputErrorKind string

// Input error kinds.
const (
	KindMissingIdentifierColumn InputErrorKind = "missing_identifier_column"
	KindMissingForeignKeyColumn InputErrorKind = "missing_foreign_key_column"
	KindMissingIdentifier       InputErrorKind = "missing_identifier"
	KindInvalidForeignKey       InputErrorKind = "invalid_foreign_key"
)

// InputError is raised before any network call when the records handed to an
// operation cannot be sent.
type InputError struct {
	Kind    InputErrorKind
	Message string
}

func (e *InputError) Error() string { return e.Message }

// Is matches any InputError of the same kind.
func (e *InputError) Is(target error) bool {
	t, ok := target.(*InputError)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrMissingIdentifierColumn = &InputError{Kind: KindMissingIdentifierColumn, Message: "missing identifier column"}
	ErrMissingForeignKeyColumn = &InputError{Kind: KindMissingForeignKeyColumn, Message: "missing foreign key column"}
	ErrMissingIdentifier       = &InputError{Kind: KindMissingIdentifier, Message: "missing identifier"}
	ErrInvalidForeignKey       = &InputError{Kind: KindInvalidForeignKey, Message: "invalid foreign key"}
)

// ErrInput creates an InputError with a formatted message.
func ErrInput(kind InputErrorKind, format string, args ...interface{}) *InputError {
	return &InputError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// ValidationError wraps an HTTP 422 response: the server rejected the data.
// Payload holds the decoded response body, or the raw text when it is not JSON.
type ValidationError struct {
	Operation  string
	StatusCode int
	Payload    interface{}
}

func (e *ValidationError) Error() string {
	body, err := json.Marshal(e.Payload)
	if err != nil {
		body = []byte(fmt.Sprintf("%v", e.Payload))
	}
	return fmt.Sprintf("%s: validation failed (HTTP %d): %s", e.Operation, e.StatusCode, body)
}

// TransportError is any other non-success HTTP status or a network failure.
// StatusCode is zero when no response was received.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResponseMismatchError is returned when a batched insert response does not
// carry exactly one record per submitted record.
type ResponseMismatchError struct {
	Table    string
	Sent     int
	Received int
}

func (e *ResponseMismatchError) Error() string {
	return fmt.Sprintf("insert into %s: sent %d records, server returned %d", e.Table, e.Sent, e.Received)
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = fmt.Sprintf("%q", n)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

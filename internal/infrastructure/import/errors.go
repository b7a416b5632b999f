package csvimport

import (
	"errors"
	"fmt"
)

// Codes attached to row-level problems
const (
	ErrCodeMalformedRow  = "ERR_IMPORT_MALFORMED_ROW"
	ErrCodeRequiredField = "ERR_IMPORT_REQUIRED_FIELD"
	ErrCodeInvalidType   = "ERR_IMPORT_INVALID_TYPE"
	ErrCodeInvalidLength = "ERR_IMPORT_INVALID_LENGTH"
	ErrCodeInvalidRange  = "ERR_IMPORT_INVALID_RANGE"
	ErrCodeValidation    = "ERR_IMPORT_VALIDATION"
)

// File-level failures that abort parsing outright
var (
	// ErrEmptyFile is returned when the file has no content at all
	ErrEmptyFile = errors.New("file is empty")

	// ErrInvalidEncoding is returned when the file is not valid UTF-8
	ErrInvalidEncoding = errors.New("file is not valid UTF-8")

	// ErrMissingHeader is returned when the file has no header row
	ErrMissingHeader = errors.New("file has no header row")

	// ErrTooManyRows is returned when the file exceeds the row limit
	ErrTooManyRows = errors.New("file exceeds the row limit")
)

// RowError locates one problem in one data row
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Error implements the error interface
func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, column %q: %s", e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// NewRowError creates a new RowError
func NewRowError(row int, column, code, message string) RowError {
	return RowError{
		Row:     row,
		Column:  column,
		Code:    code,
		Message: message,
	}
}

// NewRowErrorWithValue creates a RowError carrying the offending value
func NewRowErrorWithValue(row int, column, code, message, value string) RowError {
	return RowError{
		Row:     row,
		Column:  column,
		Code:    code,
		Message: message,
		Value:   value,
	}
}

// ErrorCollection caps how many row errors are kept while still counting
// every one seen. A million-row file with a systematic problem reports the
// problem without hauling a million details around.
type ErrorCollection struct {
	kept  []RowError
	max   int
	total int
}

// NewErrorCollection creates a collection keeping at most max errors
func NewErrorCollection(max int) *ErrorCollection {
	if max <= 0 {
		max = 100
	}
	return &ErrorCollection{
		kept: make([]RowError, 0, max),
		max:  max,
	}
}

// Add records one error, keeping it only while under the cap
func (c *ErrorCollection) Add(err RowError) {
	c.total++
	if len(c.kept) < c.max {
		c.kept = append(c.kept, err)
	}
}

// AddAll records a batch of errors
func (c *ErrorCollection) AddAll(errs []RowError) {
	for _, err := range errs {
		c.Add(err)
	}
}

// Errors returns the kept errors
func (c *ErrorCollection) Errors() []RowError {
	return c.kept
}

// Count returns how many errors were kept
func (c *ErrorCollection) Count() int {
	return len(c.kept)
}

// TotalCount returns how many errors were seen, kept or not
func (c *ErrorCollection) TotalCount() int {
	return c.total
}

// HasErrors reports whether any error was seen
func (c *ErrorCollection) HasErrors() bool {
	return c.total > 0
}

// IsTruncated reports whether the cap dropped any errors
func (c *ErrorCollection) IsTruncated() bool {
	return c.total > c.max
}

package csvimport

import (
	"errors"
	"fmt"
	"strings"
)

// Upload error codes.
const (
	ErrCodeUploadInvalidFile  = "ERR_UPLOAD_INVALID_FILE"
	ErrCodeUploadEmptyFile    = "ERR_UPLOAD_EMPTY_FILE"
	ErrCodeUploadFileTooLarge = "ERR_UPLOAD_FILE_TOO_LARGE"

	ErrCodeUploadInvalidEncoding = "ERR_UPLOAD_INVALID_ENCODING"

	ErrCodeUploadCSVParsing    = "ERR_UPLOAD_CSV_PARSING"
	ErrCodeUploadMissingHeader = "ERR_UPLOAD_MISSING_HEADER"
	ErrCodeUploadInvalidHeader = "ERR_UPLOAD_INVALID_HEADER"
	ErrCodeUploadUnknownColumn = "ERR_UPLOAD_UNKNOWN_COLUMN"

	ErrCodeUploadValidation      = "ERR_UPLOAD_VALIDATION"
	ErrCodeUploadRequiredField   = "ERR_UPLOAD_REQUIRED_FIELD"
	ErrCodeUploadInvalidFormat   = "ERR_UPLOAD_INVALID_FORMAT"
	ErrCodeUploadScopeViolation  = "ERR_UPLOAD_SCOPE_VIOLATION"
	ErrCodeUploadDuplicateInFile = "ERR_UPLOAD_DUPLICATE_IN_FILE"
)

// Common upload errors.
var (
	ErrEmptyFile       = errors.New("upload file is empty")
	ErrInvalidEncoding = errors.New("upload file is not valid UTF-8")
	ErrMissingHeader   = errors.New("upload file missing header row")
	ErrInvalidHeader   = errors.New("invalid header row")
	ErrNoDataRows      = errors.New("upload file contains no data rows")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
)

// RowError represents an error in a specific row.
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

func (e RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("row %d, column '%s': %s", e.Row, e.Column, e.Message)
	}
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// NewRowError creates a new RowError.
func NewRowError(row int, column, code, message string) RowError {
	return RowError{
		Row:     row,
		Column:  column,
		Code:    code,
		Message: message,
	}
}

// NewRowErrorWithValue creates a new RowError carrying the offending value.
func NewRowErrorWithValue(row int, column, code, message, value string) RowError {
	return RowError{
		Row:     row,
		Column:  column,
		Code:    code,
		Message: message,
		Value:   value,
	}
}

// ErrorCollection accumulates row errors up to a cap, still counting the
// overflow.
type ErrorCollection struct {
	errors     []RowError
	maxErrors  int
	totalCount int
}

// NewErrorCollection creates an ErrorCollection with a maximum error limit.
func NewErrorCollection(maxErrors int) *ErrorCollection {
	if maxErrors <= 0 {
		maxErrors = 100
	}
	return &ErrorCollection{
		errors:    make([]RowError, 0, maxErrors),
		maxErrors: maxErrors,
	}
}

// Add adds an error to the collection.
func (ec *ErrorCollection) Add(err RowError) {
	ec.totalCount++
	if len(ec.errors) < ec.maxErrors {
		ec.errors = append(ec.errors, err)
	}
}

// AddRequiredError adds a required field error.
func (ec *ErrorCollection) AddRequiredError(row int, column string) {
	ec.Add(NewRowError(row, column, ErrCodeUploadRequiredField, fmt.Sprintf("field '%s' is required", column)))
}

// AddFormatError adds a format validation error.
func (ec *ErrorCollection) AddFormatError(row int, column, expectedFormat, value string) {
	ec.Add(NewRowErrorWithValue(row, column, ErrCodeUploadInvalidFormat,
		fmt.Sprintf("invalid format, expected %s", expectedFormat), value))
}

// AddDuplicateError adds a duplicate-in-file error.
func (ec *ErrorCollection) AddDuplicateError(row int, column, value string) {
	ec.Add(NewRowErrorWithValue(row, column, ErrCodeUploadDuplicateInFile,
		fmt.Sprintf("duplicate value '%s' found in file", value), value))
}

// Errors returns the collected errors.
func (ec *ErrorCollection) Errors() []RowError {
	return ec.errors
}

// Count returns the number of collected errors (up to maxErrors).
func (ec *ErrorCollection) Count() int {
	return len(ec.errors)
}

// TotalCount returns the total number of errors including the overflow.
func (ec *ErrorCollection) TotalCount() int {
	return ec.totalCount
}

// HasErrors returns true if there are any errors.
func (ec *ErrorCollection) HasErrors() bool {
	return ec.totalCount > 0
}

// IsTruncated returns true if some errors were dropped due to the limit.
func (ec *ErrorCollection) IsTruncated() bool {
	return ec.totalCount > ec.maxErrors
}

// String returns a readable summary of all collected errors.
func (ec *ErrorCollection) String() string {
	if !ec.HasErrors() {
		return "no errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d error(s) found", ec.totalCount))
	if ec.IsTruncated() {
		sb.WriteString(fmt.Sprintf(" (showing first %d)", ec.maxErrors))
	}
	sb.WriteString(":\n")

	for _, err := range ec.errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}

	return sb.String()
}

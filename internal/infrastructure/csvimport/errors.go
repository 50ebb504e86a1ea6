package csvimport

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyFile indicates the uploaded file contains no data
	ErrEmptyFile = errors.New("csvimport: file is empty")
	// ErrInvalidEncoding indicates the file is not valid UTF-8
	ErrInvalidEncoding = errors.New("csvimport: file is not valid UTF-8")
	// ErrMissingHeader indicates the file has no header row
	ErrMissingHeader = errors.New("csvimport: missing header row")
)

// RowError describes a problem with one data row. Row errors are collected,
// never aborting the rest of the import.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Line, e.Message)
}

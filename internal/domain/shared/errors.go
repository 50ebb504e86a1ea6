package shared

import "errors"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound              = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists         = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput          = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict   = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrInvalidState          = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrInsufficientInventory = NewDomainError("INSUFFICIENT_INVENTORY", "Insufficient inventory available")
	ErrLockTimeout           = NewDomainError("LOCK_TIMEOUT", "Timed out waiting for lock acquisition")
	ErrDuplicateOperation    = NewDomainError("DUPLICATE_OPERATION", "Operation was already applied")
	ErrJobConflict           = NewDomainError("JOB_CONFLICT", "A conflicting job is already running")
)

// IsCode reports whether err is a DomainError carrying the given code.
func IsCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsInsufficientInventory reports whether err represents an inventory shortfall.
// This is an expected business outcome, not an infrastructure fault.
func IsInsufficientInventory(err error) bool {
	return IsCode(err, ErrInsufficientInventory.Code)
}

// IsLockTimeout reports whether err is a retryable lock acquisition timeout.
func IsLockTimeout(err error) bool {
	return IsCode(err, ErrLockTimeout.Code)
}

package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrTypeParsing          ErrorType = "PARSING"
	ErrTypeStorage          ErrorType = "STORAGE"
	ErrTypeValidation       ErrorType = "VALIDATION"
	ErrTypeNotFound         ErrorType = "NOT_FOUND"
	ErrTypeConfig           ErrorType = "CONFIG"
	ErrTypeUnknownDataset   ErrorType = "UNKNOWN_DATASET"
	ErrTypeUnknownColumn    ErrorType = "UNKNOWN_COLUMN"
	ErrTypeUnknownRow       ErrorType = "UNKNOWN_ROW"
	ErrTypeDuplicateDataset ErrorType = "DUPLICATE_DATASET"
	ErrTypeTypeMismatch     ErrorType = "TYPE_MISMATCH"
	ErrTypeInvalidPredicate ErrorType = "INVALID_PREDICATE"
)

// Sentinel causes for dataset request errors. Every AppError built by the
// helpers below wraps one of these, so callers can match with errors.Is.
var (
	ErrUnknownDataset       = errors.New("unknown dataset")
	ErrUnknownColumn        = errors.New("unknown column")
	ErrUnknownRow           = errors.New("unknown row")
	ErrDuplicateDatasetName = errors.New("duplicate dataset name")
	ErrTypeMismatch         = errors.New("type mismatch")
	ErrInvalidPredicate     = errors.New("invalid predicate")
)

// AppError represents an application-specific error
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work with AppError
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// TypeOf returns the ErrorType of the first AppError in err's chain
func TypeOf(err error) (ErrorType, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type, true
	}
	return "", false
}

// NewParsingError creates a parsing-related error
func NewParsingError(message string, cause error) *AppError {
	return NewAppError(ErrTypeParsing, message, cause)
}

// NewStorageError creates a storage-related error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrTypeStorage, message, cause)
}

// NewAppValidationError creates a validation error for AppError type
func NewAppValidationError(message string) *AppError {
	return NewAppError(ErrTypeValidation, message, nil)
}

// NewConfigError creates a configuration error
func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrTypeConfig, message, cause)
}

// UnknownDataset reports a request against a dataset that does not exist
func UnknownDataset(name string) *AppError {
	return NewAppError(ErrTypeUnknownDataset, fmt.Sprintf("dataset %q", name), ErrUnknownDataset).
		WithContext("dataset", name)
}

// UnknownColumn reports a request naming a column the dataset does not have
func UnknownColumn(dataset, column string) *AppError {
	return NewAppError(ErrTypeUnknownColumn, fmt.Sprintf("column %q in dataset %q", column, dataset), ErrUnknownColumn).
		WithContext("dataset", dataset).
		WithContext("column", column)
}

// UnknownRow reports a row id that is not present in the dataset
func UnknownRow(dataset string, id uint64) *AppError {
	return NewAppError(ErrTypeUnknownRow, fmt.Sprintf("row %d in dataset %q", id, dataset), ErrUnknownRow).
		WithContext("dataset", dataset).
		WithContext("row_id", id)
}

// DuplicateDataset reports an attempt to store over an existing dataset
func DuplicateDataset(name string) *AppError {
	return NewAppError(ErrTypeDuplicateDataset, fmt.Sprintf("dataset %q already exists", name), ErrDuplicateDatasetName).
		WithContext("dataset", name)
}

// TypeMismatch reports a filter or measure incompatible with the column type
func TypeMismatch(column, detail string) *AppError {
	return NewAppError(ErrTypeTypeMismatch, fmt.Sprintf("column %q: %s", column, detail), ErrTypeMismatch).
		WithContext("column", column)
}

// InvalidPredicate reports a malformed filter predicate
func InvalidPredicate(column, detail string) *AppError {
	return NewAppError(ErrTypeInvalidPredicate, fmt.Sprintf("column %q: %s", column, detail), ErrInvalidPredicate).
		WithContext("column", column)
}

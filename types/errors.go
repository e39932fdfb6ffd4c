package types

import "fmt"

// ValidationError reports an invalid configuration or order argument.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return "validation: " + e.Message }

func NewValidationError(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// InsufficientFundsError reports an order requiring more cash than is
// available in the portfolio.
type InsufficientFundsError struct {
	Required  float64
	Available float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %.8f, available %.8f", e.Required, e.Available)
}

// PositionNotFoundError reports a close/modify on an absent position.
type PositionNotFoundError struct {
	Symbol Symbol
}

func (e *PositionNotFoundError) Error() string {
	return fmt.Sprintf("position not found: %s", e.Symbol)
}

// DataErrorKind classifies a DataError.
type DataErrorKind string

const (
	DataErrorFileSystem DataErrorKind = "filesystem"
	DataErrorParse      DataErrorKind = "parse"
	DataErrorEncoding   DataErrorKind = "encoding"
	DataErrorStructure  DataErrorKind = "structure"
)

// DataError reports a persistent-storage failure, carrying the offending
// path and a kind so callers can react distinctly.
type DataError struct {
	Kind    DataErrorKind
	Path    string
	Message string
	Err     error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data error [%s] %s: %s", e.Kind, e.Path, e.Message)
}

func (e *DataError) Unwrap() error { return e.Err }

func NewDataError(kind DataErrorKind, path, message string, err error) error {
	return &DataError{Kind: kind, Path: path, Message: message, Err: err}
}

// CalculationError reports a metric computed on degenerate input where a
// non-degenerate one was required.
type CalculationError struct {
	Message string
}

func (e *CalculationError) Error() string { return "calculation: " + e.Message }

// StrategyError wraps an error returned by a user strategy callback.
// The run aborts and this error is attached to the result.
type StrategyError struct {
	Bar int
	Err error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("strategy error at bar %d: %v", e.Bar, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }

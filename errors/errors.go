// Package errors provides classified error handling for the adapter.
// It includes error classes, the domain error kinds raised along the request
// pipeline, and helper functions for consistent wrapping and classification.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Kind identifies where in the request pipeline an error was raised.
type Kind int

const (
	// KindUnknown is the zero kind for errors created outside the pipeline
	KindUnknown Kind = iota
	// KindFormat marks a malformed probe body or underivable attributes
	KindFormat
	// KindNotFound marks a parser name no search directory could resolve
	KindNotFound
	// KindInvalid marks a parser that resolved but does not satisfy the contract
	KindInvalid
	// KindValidation marks a request missing its entity identifiers
	KindValidation
	// KindTransport marks a network level failure talking to the broker
	KindTransport
	// KindProtocol marks an application error code embedded in a broker response
	KindProtocol
)

// String returns the error kind name used in logs and metric labels
func (k Kind) String() string {
	switch k {
	case KindFormat:
		return "FormatError"
	case KindNotFound:
		return "NotFoundError"
	case KindInvalid:
		return "InvalidError"
	case KindValidation:
		return "ValidationError"
	case KindTransport:
		return "TransportError"
	case KindProtocol:
		return "ProtocolError"
	default:
		return "Error"
	}
}

// Standard error variables for common conditions
var (
	// Component lifecycle errors
	ErrAlreadyStarted = errors.New("component already started")

	// Connection and networking errors
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionTimeout = errors.New("connection timeout")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Parser errors
	ErrMustImplement       = errors.New("must implement")
	ErrInvalidDataFormat   = errors.New("invalid plugin data format")
	ErrInvalidPerfFormat   = errors.New("invalid optional perfdata format")
	ErrMissingEntity       = errors.New("missing entityId and/or entityType")
	ErrMissingAttributes   = errors.New("missing entity context attributes")
	ErrMissingResource     = errors.New("missing resource in request")
	ErrParserNotFound      = errors.New("parser could not be found")
	ErrParserInvalid       = errors.New("invalid parser")
	ErrBrokerResponseError = errors.New("broker reported an error")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Kind      Kind
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Check for classified error
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrNoConnection) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Check error message for common transient patterns
	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"broken pipe",
		"eof",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrMissingConfig)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidDataFormat) ||
		errors.Is(err, ErrInvalidPerfFormat) ||
		errors.Is(err, ErrMissingEntity) ||
		errors.Is(err, ErrMissingAttributes)
}

// KindOf returns the pipeline kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given pipeline kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	if IsTransient(err) {
		return ErrorTransient
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}

	// Default to transient for unknown errors to allow retry
	return ErrorTransient
}

func newClassified(class ErrorClass, kind Kind, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Kind:      kind,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, KindUnknown, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, KindUnknown, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, KindUnknown, wrappedErr, component, method, wrappedErr.Error())
}

// Format returns a FormatError. The message is kept as-is so that it can be
// reported verbatim in logs.
func Format(err error, component, operation string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorInvalid, KindFormat, err, component, operation, err.Error())
}

// Formatf builds a FormatError from a message.
func Formatf(component, operation, format string, args ...any) error {
	return Format(fmt.Errorf(format, args...), component, operation)
}

// NotFound returns a NotFoundError for a parser that no search directory holds.
func NotFound(err error, component, operation string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorInvalid, KindNotFound, err, component, operation, err.Error())
}

// Invalid returns an InvalidError for a parser that violates the contract.
func Invalid(err error, component, operation string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorInvalid, KindInvalid, err, component, operation, err.Error())
}

// Validation returns a ValidationError for a request missing required fields.
func Validation(err error, component, operation string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorInvalid, KindValidation, err, component, operation, err.Error())
}

// Transport returns a retryable TransportError.
func Transport(err error, component, operation string) error {
	if err == nil {
		return nil
	}
	return newClassified(ErrorTransient, KindTransport, err, component, operation, err.Error())
}

// Protocol returns a ProtocolError carrying the embedded application code.
func Protocol(code int, component, operation string) error {
	err := fmt.Errorf("%w: code %d", ErrBrokerResponseError, code)
	return newClassified(ErrorInvalid, KindProtocol, err, component, operation, err.Error())
}

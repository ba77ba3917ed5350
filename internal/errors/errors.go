// Package errors provides error types and handling for the API scanner.
package errors

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for handling decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Schema represents an unusable API description (missing paths, no
	// resolvable operations). Fatal for the whole scan.
	Schema
	// Config represents invalid scan configuration. Fatal before any
	// request is sent.
	Config
	// Mutation represents a probe that could not be rendered for a
	// parameter. The parameter is skipped, the scan continues.
	Mutation
	// Network represents network-related errors (DNS, connection).
	Network
	// Timeout represents timeout errors.
	Timeout
	// RateLimit represents rate limiting (429) errors.
	RateLimit
	// Auth represents authentication/authorization errors (401, 403).
	Auth
	// ServerError represents 5xx errors.
	ServerError
	// ClientError represents 4xx errors (except 401, 403, 429).
	ClientError
	// Cancelled represents context cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case Schema:
		return "schema"
	case Config:
		return "config"
	case Mutation:
		return "mutation"
	case Network:
		return "network"
	case Timeout:
		return "timeout"
	case RateLimit:
		return "rate_limit"
	case Auth:
		return "auth"
	case ServerError:
		return "server_error"
	case ClientError:
		return "client_error"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsRetryable returns whether errors of this type should be retried.
func (t ErrorType) IsRetryable() bool {
	switch t {
	case Network, Timeout, RateLimit:
		return true
	default:
		return false
	}
}

// IsFatal returns whether errors of this type abort the whole scan.
func (t ErrorType) IsFatal() bool {
	return t == Schema || t == Config
}

// ScanError represents a categorized scan error.
type ScanError struct {
	Type       ErrorType
	Target     string // URL, endpoint, or parameter the error relates to
	Operation  string
	Message    string
	Cause      error
	StatusCode int
	Retryable  bool
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error during %s on %s: %s (caused by: %v)",
			e.Type.String(), e.Operation, e.Target, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error during %s on %s: %s",
		e.Type.String(), e.Operation, e.Target, e.Message)
}

// Unwrap returns the underlying error.
func (e *ScanError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches a target.
func (e *ScanError) Is(target error) bool {
	t, ok := target.(*ScanError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// New creates a new ScanError.
func New(errType ErrorType, target, operation, message string, cause error) *ScanError {
	return &ScanError{
		Type:      errType,
		Target:    target,
		Operation: operation,
		Message:   message,
		Cause:     cause,
		Retryable: errType.IsRetryable(),
	}
}

// NewSchemaError creates a schema error.
func NewSchemaError(target, message string) *ScanError {
	return New(Schema, target, "normalize", message, nil)
}

// NewConfigError creates a configuration error.
func NewConfigError(message string) *ScanError {
	return New(Config, "", "configure", message, nil)
}

// NewMutationError creates a mutation error for an unrenderable parameter.
func NewMutationError(target, param, message string) *ScanError {
	err := New(Mutation, target, "mutate", message, nil)
	err.Message = fmt.Sprintf("parameter %q: %s", param, message)
	return err
}

// NewNetworkError creates a network error.
func NewNetworkError(target, operation string, cause error) *ScanError {
	return New(Network, target, operation, "network failure", cause)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(target, operation string, cause error) *ScanError {
	return New(Timeout, target, operation, "request timed out", cause)
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(target string) *ScanError {
	err := New(RateLimit, target, "request", "rate limited by target", nil)
	err.StatusCode = 429
	return err
}

// NewAuthError creates an authentication error.
func NewAuthError(target string, statusCode int, message string) *ScanError {
	err := New(Auth, target, "request", message, nil)
	err.StatusCode = statusCode
	err.Retryable = false
	return err
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(target, operation string) *ScanError {
	err := New(Cancelled, target, operation, "operation cancelled", nil)
	err.Retryable = false
	return err
}

// Categorize determines the error type from a generic error.
func Categorize(err error, target string) *ScanError {
	if err == nil {
		return nil
	}

	// Already a ScanError
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr
	}

	if strings.Contains(err.Error(), "context canceled") {
		return NewCancelledError(target, "request")
	}

	if isTimeout(err) {
		return NewTimeoutError(target, "request", err)
	}

	if isNetworkError(err) {
		return NewNetworkError(target, "request", err)
	}

	return New(Unknown, target, "request", err.Error(), err)
}

// isTimeout checks if an error is a timeout.
func isTimeout(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context deadline")
}

// isNetworkError checks if an error is network-related.
func isNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	// A connection dropped mid-exchange surfaces as a bare EOF.
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "dial tcp") ||
		strings.Contains(errStr, "EOF")
}

// IsRetryable checks if an error should be retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Retryable
	}

	var tempErr interface{ Temporary() bool }
	if errors.As(err, &tempErr) && tempErr.Temporary() {
		return true
	}

	return isTimeout(err) || isNetworkError(err)
}

// IsFatal checks if an error should abort the whole scan.
func IsFatal(err error) bool {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Type.IsFatal()
	}
	return false
}

// IsMutationError checks if an error means a parameter should be skipped.
func IsMutationError(err error) bool {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Type == Mutation
	}
	return false
}

// GetStatusCode extracts the status code from an error.
func GetStatusCode(err error) int {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.StatusCode
	}
	return 0
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Type
	}
	return Unknown
}

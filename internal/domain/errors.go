package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// Domain Error Types
// ============================================================================

// DomainError represents a domain-specific error with a code and message
type DomainError struct {
	Code    string
	Message string
	Cause   error
}

// Error includes the cause unless the message already ends with its text.
func (e *DomainError) Error() string {
	if e.Cause != nil && !strings.HasSuffix(e.Message, e.Cause.Error()) {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError carrying the same code, so callers can write
// errors.Is(err, domain.ErrUnauthorized) against wrapped instances.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, cause error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ValidationIssue is a single violated input constraint.
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every violated constraint of one input, in the
// order the constraints were checked.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidationFailed.Code, e.Summary())
}

// Summary joins the issue messages with ", ".
func (e *ValidationError) Summary() string {
	msgs := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		msgs = append(msgs, issue.Message)
	}
	return strings.Join(msgs, ", ")
}

// Is reports ValidationError as a VALIDATION_FAILED domain error.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// ============================================================================
// Common Domain Errors
// ============================================================================

var (
	// Validation Errors
	ErrValidationFailed = &DomainError{
		Code:    "VALIDATION_FAILED",
		Message: "validation failed",
	}

	// Session Errors
	ErrUnauthorized = &DomainError{
		Code:    "UNAUTHORIZED",
		Message: "no session found",
	}

	// Auth Errors
	ErrAuthFailed = &DomainError{
		Code:    "AUTH_FAILED",
		Message: "authentication failed",
	}
	ErrEmailNotConfirmed = &DomainError{
		Code:    "EMAIL_NOT_CONFIRMED",
		Message: "email not confirmed",
	}

	// Infrastructure Errors
	ErrPersistence = &DomainError{
		Code:    "PERSISTENCE_FAILED",
		Message: "store rejected the write",
	}
	ErrTransport = &DomainError{
		Code:    "TRANSPORT_FAILED",
		Message: "provider unreachable",
	}
)

// ProviderError is an error answer returned by the identity/storage provider.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("provider %d: %s", e.Status, e.Message)
}

// ProviderErrorCodeEmailNotConfirmed is the provider code for a sign-in on an
// identity whose email confirmation is still pending.
const ProviderErrorCodeEmailNotConfirmed = "email_not_confirmed"

// ============================================================================
// Error Wrapping Helpers
// ============================================================================

// WrapValidationError wraps an error as a validation error for a field
func WrapValidationError(field string, cause error) error {
	message := fmt.Sprintf("validation failed for %s", field)
	if cause != nil {
		message = fmt.Sprintf("%s: %v", message, cause)
	}
	return &DomainError{
		Code:    ErrValidationFailed.Code,
		Message: message,
		Cause:   cause,
	}
}

// WrapUnauthorized wraps an error as a missing or expired session
func WrapUnauthorized(cause error) error {
	message := ErrUnauthorized.Message
	if cause != nil {
		message = cause.Error()
	}
	return &DomainError{
		Code:    ErrUnauthorized.Code,
		Message: "Unauthorized: " + message,
		Cause:   cause,
	}
}

// WrapPersistence wraps an error as a rejected write
func WrapPersistence(operation string, cause error) error {
	return &DomainError{
		Code:    ErrPersistence.Code,
		Message: fmt.Sprintf("Failed to %s: %s", operation, causeMessage(cause, "Unknown error occurred")),
		Cause:   cause,
	}
}

// WrapTransport wraps an error as an unexpected or network failure
func WrapTransport(operation string, cause error) error {
	return &DomainError{
		Code:    ErrTransport.Code,
		Message: fmt.Sprintf("Unexpected error during %s: %s", operation, causeMessage(cause, "unknown")),
		Cause:   cause,
	}
}

// WrapAuthFailed wraps a provider rejection of an auth operation
func WrapAuthFailed(operation string, cause error) error {
	code := ErrAuthFailed.Code
	if IsEmailNotConfirmed(cause) {
		code = ErrEmailNotConfirmed.Code
	}
	return &DomainError{
		Code:    code,
		Message: fmt.Sprintf("%s failed: %s", operation, causeMessage(cause, "An unknown error occurred.")),
		Cause:   cause,
	}
}

func causeMessage(cause error, fallback string) string {
	var providerErr *ProviderError
	if errors.As(cause, &providerErr) && providerErr.Message != "" {
		return providerErr.Message
	}
	var domainErr *DomainError
	if errors.As(cause, &domainErr) && domainErr.Message != "" {
		return domainErr.Message
	}
	if cause != nil {
		return cause.Error()
	}
	return fallback
}

// ============================================================================
// Error Checking Helpers
// ============================================================================

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidationFailed)
}

// IsUnauthorized checks if an error is a missing or expired session
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsPersistenceError checks if an error is a rejected write
func IsPersistenceError(err error) bool {
	return errors.Is(err, ErrPersistence)
}

// IsTransportError checks if an error is a network or unexpected failure
func IsTransportError(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsEmailNotConfirmed checks if an error reports a pending email confirmation
func IsEmailNotConfirmed(err error) bool {
	if errors.Is(err, ErrEmailNotConfirmed) {
		return true
	}
	var providerErr *ProviderError
	return errors.As(err, &providerErr) && providerErr.Code == ProviderErrorCodeEmailNotConfirmed
}

// IsProviderError checks if an error is an answer from the provider, as opposed
// to a failure to reach it
func IsProviderError(err error) bool {
	var providerErr *ProviderError
	return errors.As(err, &providerErr)
}

// ErrorCode returns the domain error code carried by err, or "" when err is
// not a domain error
func ErrorCode(err error) string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ErrValidationFailed.Code
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// PublicMessage returns the message that is safe to show to users
func PublicMessage(err error) string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Summary()
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) && domainErr.Message != "" {
		return domainErr.Message
	}
	return "An error occurred"
}

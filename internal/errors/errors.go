// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType classifies a pipeline failure. The resolver's retry policy is
// driven entirely by this classification.
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation_error"
	ErrorTypePermission     ErrorType = "permission_denied"
	ErrorTypeRateLimited    ErrorType = "rate_limited"
	ErrorTypeNetwork        ErrorType = "network_error"
	ErrorTypeNoContent      ErrorType = "no_usable_content"
	ErrorTypeSafetyFiltered ErrorType = "safety_filtered"
	ErrorTypeTimeout        ErrorType = "operation_timed_out"
	ErrorTypeExhausted      ErrorType = "all_candidates_exhausted"
	ErrorTypeUpload         ErrorType = "upload_failed"
	ErrorTypeConcat         ErrorType = "concatenation_failed"
	ErrorTypeProcessing     ErrorType = "processing_error"
)

// AppError is the application error structure.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // user-facing error code
	Hint    string // remediation hint, when one exists
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap supports the errors chain.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError.
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// WithHint attaches a remediation hint and returns the same error.
func (e *AppError) WithHint(hint string) *AppError {
	e.Hint = hint
	return e
}

// NewValidationError creates a validation error (bad credential format,
// empty candidate list, malformed request).
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewPermissionError creates a fatal permission error. It is never retried
// and propagates to the caller verbatim.
func NewPermissionError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypePermission, message, originalError)
}

// NewRateLimitedError creates a rate-limit error carrying the upstream text
// so the resolver can parse a wait hint out of it.
func NewRateLimitedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeRateLimited, message, originalError)
}

// NewNetworkError creates a transient network error.
func NewNetworkError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNetwork, message, originalError)
}

// NewNoContentError marks a response that succeeded but carried no usable
// payload in any known shape.
func NewNoContentError(message string) *AppError {
	return NewAppError(ErrorTypeNoContent, message, nil)
}

// NewSafetyFilteredError marks output blocked by the provider's content
// filter. The message includes the joined filter reasons.
func NewSafetyFilteredError(message string) *AppError {
	return NewAppError(ErrorTypeSafetyFiltered, message, nil).
		WithHint("simplify the scene description: remove dialogue and describe only visible action")
}

// NewTimeoutError marks a long-running operation that exceeded its poll
// ceiling.
func NewTimeoutError(message string) *AppError {
	return NewAppError(ErrorTypeTimeout, message, nil)
}

// NewExhaustedError aggregates the per-candidate failures after every
// candidate has been tried.
func NewExhaustedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeExhausted, message, originalError)
}

// NewUploadError marks a failed clip upload during stitching.
func NewUploadError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUpload, message, originalError)
}

// NewConcatError marks a failed concatenation during stitching.
func NewConcatError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConcat, message, originalError)
}

// NewProcessingError creates a generic processing error.
func NewProcessingError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeProcessing, message, originalError)
}

// TypeOf returns the classification of err, or ErrorTypeProcessing for
// errors that are not AppErrors.
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ErrorTypeProcessing
}

// IsPermissionError reports whether err is a fatal permission error.
func IsPermissionError(err error) bool {
	return TypeOf(err) == ErrorTypePermission
}

// IsRateLimited reports whether err is a rate-limit error.
func IsRateLimited(err error) bool {
	return TypeOf(err) == ErrorTypeRateLimited
}

// IsNetworkError reports whether err is a transient network error.
func IsNetworkError(err error) bool {
	return TypeOf(err) == ErrorTypeNetwork
}

// IsSafetyFiltered reports whether err is a content-filter rejection.
func IsSafetyFiltered(err error) bool {
	return TypeOf(err) == ErrorTypeSafetyFiltered
}

// IsValidationError reports whether err is a validation error.
func IsValidationError(err error) bool {
	return TypeOf(err) == ErrorTypeValidation
}

// generateErrorCode derives the user-facing code from the type.
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypePermission:
		return "PERMISSION_DENIED"
	case ErrorTypeRateLimited:
		return "RATE_LIMITED"
	case ErrorTypeNetwork:
		return "NETWORK_ERROR"
	case ErrorTypeNoContent:
		return "NO_USABLE_CONTENT"
	case ErrorTypeSafetyFiltered:
		return "SAFETY_FILTERED"
	case ErrorTypeTimeout:
		return "OPERATION_TIMED_OUT"
	case ErrorTypeExhausted:
		return "ALL_CANDIDATES_EXHAUSTED"
	case ErrorTypeUpload:
		return "UPLOAD_FAILED"
	case ErrorTypeConcat:
		return "CONCATENATION_FAILED"
	default:
		return "PROCESSING_ERROR"
	}
}

// WrapError wraps an existing error, preserving an existing AppError's
// classification.
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
			Code:    appError.Code,
			Hint:    appError.Hint,
		}
	}

	return NewAppError(errType, message, err)
}

package common

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInternal       = errors.New("internal error")
	ErrDatabase       = errors.New("database error")
	ErrValidation     = errors.New("validation failed")
	ErrCollaborator   = errors.New("collaborator failure")
	ErrNoModel        = errors.New("no classifier model loaded")
	ErrSchemaMismatch = errors.New("feature schema mismatch")
)

// Error codes carried on AppError and on extraction issues.
const (
	CodeConfig          = "CONFIG_ERROR"
	CodeExtractor       = "EXTRACTOR_FAILED"
	CodeClassifier      = "CLASSIFIER_FAILED"
	CodeTimeout         = "DOCUMENT_TIMEOUT"
	CodeNormalizePass   = "NORMALIZE_PASS_FAILED"
	CodeFeatureLine     = "FEATURE_LINE_FAILED"
	CodePatternInvalid  = "PATTERN_INVALID"
	CodeRequiredMissing = "REQUIRED_FIELD_MISSING"
	CodeCoercion        = "VALUE_COERCION_FAILED"
	CodeAmountMismatch  = "AMOUNT_MISMATCH"
	CodeModelSwap       = "MODEL_LOAD_FAILED"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// CodeOf returns the AppError code in err's chain, or "".
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func InvalidArgumentErrorf(format string, args ...any) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}

func InternalErrorf(format string, args ...any) error {
	return InternalError(fmt.Sprintf(format, args...))
}

// ToStatus maps an application error onto a gRPC status error.
func ToStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return InvalidArgumentError(err.Error())
	case errors.Is(err, ErrNotFound):
		return NotFoundError(err.Error())
	case errors.Is(err, ErrNoModel), errors.Is(err, ErrCollaborator):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return InternalError(err.Error())
	}
}

func UnimplementedError(message string) error {
	return status.Error(codes.Unimplemented, message)
}

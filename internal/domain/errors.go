package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound             = fmt.Errorf("not found")
	ErrMalformedManifest    = fmt.Errorf("malformed manifest")
	ErrSearchRootMissing    = fmt.Errorf("installation search root missing")
	ErrUnsupportedPlatform  = fmt.Errorf("unsupported platform")
	ErrUnsupportedOperation = fmt.Errorf("unsupported operation")
	ErrProcessExitNonZero   = fmt.Errorf("process exited with non-zero code")
	ErrMissingContextField  = fmt.Errorf("missing context field")
	ErrInvalidInput         = fmt.Errorf("invalid input")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Locator.Locate")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "project", "engine"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ProcessExitError reports a subprocess that finished with a non-zero exit code.
type ProcessExitError struct {
	Task string
	Code int
}

func (e *ProcessExitError) Error() string {
	return fmt.Sprintf("task %q: exit code %d", e.Task, e.Code)
}

func (e *ProcessExitError) Unwrap() error { return ErrProcessExitNonZero }

// MissingFieldError reports a session-state field that an operation needs but
// that has not been resolved yet.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingContextField, e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrMissingContextField }

// NeedsDetection reports whether err means the project or engine has not been
// detected (or has gone away) and the caller should offer to rerun detection.
func NeedsDetection(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrMissingContextField)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown              ErrorCode = "UNKNOWN"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeMalformedManifest    ErrorCode = "MALFORMED_MANIFEST"
	CodeSearchRootMissing    ErrorCode = "INSTALLATION_SEARCH_ROOT_MISSING"
	CodeUnsupportedPlatform  ErrorCode = "UNSUPPORTED_PLATFORM"
	CodeUnsupportedOperation ErrorCode = "UNSUPPORTED_OPERATION"
	CodeProcessExitNonZero   ErrorCode = "PROCESS_EXIT_NON_ZERO"
	CodeMissingContextField  ErrorCode = "MISSING_CONTEXT_FIELD"
	CodeInvalidInput         ErrorCode = "INVALID_INPUT"

	// Subsystem-specific codes resolved through subSystemCodeMap.
	CodeProjectNotFound ErrorCode = "PROJECT_NOT_FOUND"
	CodeEngineNotFound  ErrorCode = "ENGINE_NOT_FOUND"
	CodeTaskNotFound    ErrorCode = "TASK_NOT_FOUND"
	CodePluginMalformed ErrorCode = "PLUGIN_MALFORMED"
	CodeMSBuildNotFound ErrorCode = "MSBUILD_NOT_FOUND"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:             CodeNotFound,
	ErrMalformedManifest:    CodeMalformedManifest,
	ErrSearchRootMissing:    CodeSearchRootMissing,
	ErrUnsupportedPlatform:  CodeUnsupportedPlatform,
	ErrUnsupportedOperation: CodeUnsupportedOperation,
	ErrProcessExitNonZero:   CodeProcessExitNonZero,
	ErrMissingContextField:  CodeMissingContextField,
	ErrInvalidInput:         CodeInvalidInput,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"project": CodeProjectNotFound,
		"engine":  CodeEngineNotFound,
		"task":    CodeTaskNotFound,
		"msbuild": CodeMSBuildNotFound,
	},
	ErrMalformedManifest: {
		"plugin": CodePluginMalformed,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(e.Err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}

package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrDeviceNotFound   = fmt.Errorf("device not found")
	ErrNotConnected     = fmt.Errorf("device not connected")
	ErrConnectFailed    = fmt.Errorf("connection failed")
	ErrServiceMissing   = fmt.Errorf("required gatt service missing")
	ErrAlreadyStreaming = fmt.Errorf("stream already active")
	ErrInvalidSample    = fmt.Errorf("invalid sample data")
	ErrInvalidFrame     = fmt.Errorf("invalid pmd frame")
	ErrDataTimeout      = fmt.Errorf("no data received")
	ErrReconnectGaveUp  = fmt.Errorf("reconnection attempts exhausted")
	ErrSessionNotFound  = fmt.Errorf("session not found")
	ErrStorage          = fmt.Errorf("storage operation failed")
	ErrExportFailed     = fmt.Errorf("export failed")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Client.Connect")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
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

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient link error that a
// reconnect attempt may resolve.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrConnectFailed) ||
		errors.Is(err, ErrDataTimeout) ||
		errors.Is(err, ErrNotConnected)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown         ErrorCode = "UNKNOWN"
	CodeDeviceNotFound  ErrorCode = "DEVICE_NOT_FOUND"
	CodeNotConnected    ErrorCode = "NOT_CONNECTED"
	CodeConnectFailed   ErrorCode = "CONNECT_FAILED"
	CodeServiceMissing  ErrorCode = "SERVICE_MISSING"
	CodeAlreadyStream   ErrorCode = "ALREADY_STREAMING"
	CodeInvalidSample   ErrorCode = "INVALID_SAMPLE"
	CodeInvalidFrame    ErrorCode = "INVALID_FRAME"
	CodeDataTimeout     ErrorCode = "DATA_TIMEOUT"
	CodeReconnectGaveUp ErrorCode = "RECONNECT_GAVE_UP"
	CodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	CodeStorage         ErrorCode = "STORAGE"
	CodeExportFailed    ErrorCode = "EXPORT_FAILED"
	CodeConfigLoad      ErrorCode = "CONFIG_LOAD"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrDeviceNotFound:   CodeDeviceNotFound,
	ErrNotConnected:     CodeNotConnected,
	ErrConnectFailed:    CodeConnectFailed,
	ErrServiceMissing:   CodeServiceMissing,
	ErrAlreadyStreaming: CodeAlreadyStream,
	ErrInvalidSample:    CodeInvalidSample,
	ErrInvalidFrame:     CodeInvalidFrame,
	ErrDataTimeout:      CodeDataTimeout,
	ErrReconnectGaveUp:  CodeReconnectGaveUp,
	ErrSessionNotFound:  CodeSessionNotFound,
	ErrStorage:          CodeStorage,
	ErrExportFailed:     CodeExportFailed,
	ErrConfigLoad:       CodeConfigLoad,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}

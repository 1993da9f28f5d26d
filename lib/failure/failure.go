// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package failure

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable string identifier for a class of failure. Codes
// appear in CLI error output and are safe to match on from scripts.
type Code string

const (
	CodeValidation             Code = "validation_error"
	CodeChecksumMismatch       Code = "checksum_mismatch"
	CodeCheckpointMissing      Code = "checkpoint_missing"
	CodeModelLoadFailed        Code = "model_load_failed"
	CodeAcceleratorUnavailable Code = "accelerator_unavailable"
	CodeDeviceUnsupported      Code = "device_unsupported"
	CodeDriverIncompatible     Code = "driver_incompatible"
	CodeBootstrapInProgress    Code = "bootstrap_in_progress"
	CodeInternal               Code = "internal_error"
)

// Codes lists every code in the taxonomy.
var Codes = []Code{
	CodeValidation,
	CodeChecksumMismatch,
	CodeCheckpointMissing,
	CodeModelLoadFailed,
	CodeAcceleratorUnavailable,
	CodeDeviceUnsupported,
	CodeDriverIncompatible,
	CodeBootstrapInProgress,
	CodeInternal,
}

// Severity groups codes by how a caller should react.
type Severity string

const (
	// SeverityInput means the caller supplied something invalid and
	// must change the request.
	SeverityInput Severity = "input"

	// SeverityTransient means another worker holds the resource; the
	// same request will succeed later.
	SeverityTransient Severity = "transient"

	// SeverityFatal means the environment or the staged artifacts are
	// unusable until an operator intervenes.
	SeverityFatal Severity = "fatal"
)

// Exit codes per severity. 75 is EX_TEMPFAIL from sysexits.h, which
// batch schedulers and init systems treat as retryable.
const (
	ExitInput     = 2
	ExitTransient = 75
	ExitFatal     = 2
)

// Severity returns the fixed severity class of the code. Unknown codes
// are fatal.
func (c Code) Severity() Severity {
	switch c {
	case CodeValidation:
		return SeverityInput
	case CodeBootstrapInProgress:
		return SeverityTransient
	default:
		return SeverityFatal
	}
}

// ExitCode returns the process exit status for the code.
func (c Code) ExitCode() int {
	switch c.Severity() {
	case SeverityInput:
		return ExitInput
	case SeverityTransient:
		return ExitTransient
	default:
		return ExitFatal
	}
}

// HTTPStatus returns the response status an HTTP surface would use for
// the code.
func (c Code) HTTPStatus() int {
	switch c.Severity() {
	case SeverityInput:
		return http.StatusUnprocessableEntity
	case SeverityTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a taxonomy error: a stable code, an operator-facing message,
// optional structured details, and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Err     error
}

// Error returns the message, followed by the cause when one is wrapped.
func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// ExitCode satisfies the interface main uses to pick an exit status.
func (e *Error) ExitCode() int { return e.Code.ExitCode() }

// With returns e with one detail added. It mutates and returns the
// receiver so constructors can be chained at the failure site.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Wrap records cause as the underlying error.
func (e *Error) Wrap(cause error) *Error {
	e.Err = cause
	return e
}

// Payload is the user-visible shape of an error.
type Payload struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Payload returns the structured form of e. The message includes the
// wrapped cause so operators see the original lower-level failure.
func (e *Error) Payload() Payload {
	return Payload{Code: e.Code, Message: e.Error(), Details: e.Details}
}

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation reports invalid caller input or configuration.
func Validation(format string, args ...any) *Error {
	return newError(CodeValidation, format, args...)
}

// ChecksumMismatch reports a downloaded artifact whose digest does not
// match the catalog.
func ChecksumMismatch(name, expected, actual string) *Error {
	return newError(CodeChecksumMismatch, "checksum mismatch for %s: expected %s, got %s", name, expected, actual).
		With("artifact", name).
		With("expected", expected).
		With("actual", actual)
}

// CheckpointMissing reports a required file or directory that is not
// on disk.
func CheckpointMissing(format string, args ...any) *Error {
	return newError(CodeCheckpointMissing, format, args...)
}

// ModelLoadFailed reports an artifact that exists but cannot be
// unpacked or loaded.
func ModelLoadFailed(format string, args ...any) *Error {
	return newError(CodeModelLoadFailed, format, args...)
}

// AcceleratorUnavailable reports an explicit accelerator request on a
// host without one.
func AcceleratorUnavailable(format string, args ...any) *Error {
	return newError(CodeAcceleratorUnavailable, format, args...)
}

// DeviceUnsupported reports an accelerator below the minimum compute
// capability.
func DeviceUnsupported(format string, args ...any) *Error {
	return newError(CodeDeviceUnsupported, format, args...)
}

// DriverIncompatible reports an accelerator driver below the minimum
// version.
func DriverIncompatible(format string, args ...any) *Error {
	return newError(CodeDriverIncompatible, format, args...)
}

// BootstrapInProgress reports that another worker holds a fresh
// bootstrap lease.
func BootstrapInProgress(format string, args ...any) *Error {
	return newError(CodeBootstrapInProgress, format, args...)
}

// Internal reports an unexpected failure.
func Internal(format string, args ...any) *Error {
	return newError(CodeInternal, format, args...)
}

// CodeOf returns the code of the first taxonomy error in err's chain,
// or CodeInternal when there is none. CodeOf(nil) returns "".
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// Classify converts any error into a taxonomy error. Taxonomy errors
// anywhere in the chain are returned unchanged. Anything else becomes
// CodeInternal wrapping the original, with the Go type of the
// outermost error recorded for diagnosis.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return &Error{
		Code:    CodeInternal,
		Message: err.Error(),
		Details: map[string]any{"cause_type": fmt.Sprintf("%T", err)},
		Err:     err,
	}
}

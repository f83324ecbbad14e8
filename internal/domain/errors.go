package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies a processing failure so the bus layer can decide
// between acknowledging, dropping and redelivering a message.
type ErrorCode string

const (
	CodeUnroutable             ErrorCode = "unroutable"
	CodeUpstreamUnavailable    ErrorCode = "upstream_unavailable"
	CodeReconciliationConflict ErrorCode = "reconciliation_conflict"
	CodeMalformedPayload       ErrorCode = "malformed_payload"
	CodeNotFound               ErrorCode = "not_found"
	CodeInternal               ErrorCode = "internal"
)

// Error is the canonical processing error wrapper.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an error with explicit code + operation.
func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

// Wrap annotates an existing error with a code. Already-coded errors keep
// their original code.
func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return err
	}
	return NewError(code, op, err.Error(), err)
}

func Unroutable(topic string) error {
	return NewError(CodeUnroutable, "route", fmt.Sprintf("no handler accepts topic %q", topic), nil)
}

func Malformed(op, format string, args ...any) error {
	return NewError(CodeMalformedPayload, op, fmt.Sprintf(format, args...), nil)
}

func Conflict(op, format string, args ...any) error {
	return NewError(CodeReconciliationConflict, op, fmt.Sprintf(format, args...), nil)
}

func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(CodeUpstreamUnavailable, op, err.Error(), err)
}

func NotFound(op, format string, args ...any) error {
	return NewError(CodeNotFound, op, fmt.Sprintf(format, args...), nil)
}

// IsCode checks whether err (or wrapped err) carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// CodeOf extracts the code when available. Context cancellation counts as
// upstream_unavailable: the message was not finished and must be redelivered.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeUpstreamUnavailable
	}
	return ""
}

// Terminal reports whether redelivering the message can never change the
// outcome.
func Terminal(err error) bool {
	switch CodeOf(err) {
	case CodeUnroutable, CodeMalformedPayload, CodeReconciliationConflict:
		return true
	default:
		return false
	}
}

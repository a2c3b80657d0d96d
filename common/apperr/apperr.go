// Package apperr defines the coded error taxonomy shared by every engine.
// Codes are stable contract values; messages are free-form. Each error
// carries a short correlation id so user-visible responses can be matched
// against structured logs.
package apperr

import (
	"fmt"

	"github.com/Laisky/errors/v2"

	"github.com/leafdriven/mediadex/common/helper"
)

type Code string

const (
	CodeAuthRequired            Code = "AUTH_REQUIRED"
	CodeInsufficientPermissions Code = "INSUFFICIENT_PERMISSIONS"
	CodeBannedUser              Code = "BANNED_USER"
	CodePremiumRequired         Code = "PREMIUM_REQUIRED"

	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	CodeFloodWait         Code = "FLOOD_WAIT"

	CodeInvalidInput    Code = "INVALID_INPUT"
	CodeInvalidLink     Code = "INVALID_LINK"
	CodeInvalidFileType Code = "INVALID_FILE_TYPE"

	CodeDatabaseError  Code = "DATABASE_ERROR"
	CodeNotFound       Code = "NOT_FOUND"
	CodeDuplicateEntry Code = "DUPLICATE_ENTRY"

	CodeTelegramAPIError    Code = "TELEGRAM_API_ERROR"
	CodeChannelAccessDenied Code = "CHANNEL_ACCESS_DENIED"

	CodeSystemError     Code = "SYSTEM_ERROR"
	CodeTimeout         Code = "TIMEOUT"
	CodeMaintenanceMode Code = "MAINTENANCE_MODE"
)

type Error struct {
	Code          Code
	Message       string
	CorrelationID string
	cause         error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s/%s] %s: %v", e.Code, e.CorrelationID, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Code, e.CorrelationID, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:          code,
		Message:       fmt.Sprintf(format, args...),
		CorrelationID: helper.GenCorrelationID(),
	}
}

func Wrap(err error, code Code, format string, args ...any) *Error {
	return &Error{
		Code:          code,
		Message:       fmt.Sprintf(format, args...),
		CorrelationID: helper.GenCorrelationID(),
		cause:         err,
	}
}

// CodeOf extracts the taxonomy code from err, walking wrapped causes.
// Unclassified errors report SYSTEM_ERROR.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeSystemError
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

package apperr

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// 业务错误码
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeInvalidTimeRange     = "INVALID_TIME_RANGE"
	CodeStartInPast          = "START_TIME_IN_PAST"
	CodeDrivewayNotAvailable = "DRIVEWAY_NOT_AVAILABLE"
	CodeVehicleTooLarge      = "VEHICLE_TOO_LARGE"
	CodeBookingConflict      = "BOOKING_CONFLICT"
	CodeCancellationTooLate  = "CANCELLATION_TOO_LATE"
	CodeInvalidTransition    = "INVALID_STATUS_TRANSITION"
	CodeNoShowTooEarly       = "NO_SHOW_TOO_EARLY"
	CodeNotFound             = "NOT_FOUND"
	CodeForbidden            = "FORBIDDEN"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeDuplicate            = "DUPLICATE_RESOURCE"
	CodeInvalidReference     = "INVALID_REFERENCE"
	CodeInvalidData          = "INVALID_DATA"
	CodeTeslaNotConnected    = "TESLA_NOT_CONNECTED"
	CodeTeslaError           = "TESLA_API_ERROR"
	CodeRateLimited          = "RATE_LIMITED"
	CodeInternal             = "INTERNAL_ERROR"
)

// PostgreSQL 约束错误码
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// Error 可映射为 HTTP 响应的应用错误
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails 附加详情
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// Validation 参数校验错误
func Validation(code, message string) *Error {
	if code == "" {
		code = CodeValidation
	}
	return New(http.StatusBadRequest, code, message)
}

// Business 业务规则错误
func Business(code, message string) *Error {
	return New(http.StatusBadRequest, code, message)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, CodeNotFound, message)
}

func Conflict(code, message string) *Error {
	return New(http.StatusConflict, code, message)
}

func Forbidden(message string) *Error {
	return New(http.StatusForbidden, CodeForbidden, message)
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, CodeUnauthorized, message)
}

// Upstream 外部服务错误，原始信息只在开发环境返回
func Upstream(code, message string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: code, Message: message, Err: err}
}

// As 提取 *Error
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode 判断错误码
func IsCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// IsUniqueViolation 唯一约束冲突
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// FromDatabase 把数据库错误映射为应用错误，无法识别时返回 nil
func FromDatabase(err error) *Error {
	if errors.Is(err, pgx.ErrNoRows) {
		return NotFound("Resource not found")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		return &Error{Status: http.StatusConflict, Code: CodeDuplicate, Message: "Resource already exists", Err: err}
	case pgForeignKeyViolation:
		return &Error{Status: http.StatusBadRequest, Code: CodeInvalidReference, Message: "Referenced resource does not exist", Err: err}
	case pgCheckViolation:
		return &Error{Status: http.StatusBadRequest, Code: CodeInvalidData, Message: "Invalid data provided", Err: err}
	}
	return nil
}

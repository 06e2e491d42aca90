package failure

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// Code is a stable identifier for a failure kind.
type Code string

const (
	MissingParameter                 Code = "missing_parameter"
	FacetNotFound                    Code = "facet_not_found"
	FacetIncompatibleWithContentType Code = "facet_incompatible_content_type"
	ContextNotFound                  Code = "context_not_found"
	QueryExecutionError              Code = "query_execution_error"
	CacheError                       Code = "cache_error"
	GeneralError                     Code = "general_error"
)

var defaults = map[Code]struct {
	message string
	status  int
}{
	MissingParameter:                 {"A required parameter is missing.", http.StatusBadRequest},
	FacetNotFound:                    {"The requested filter does not exist.", http.StatusBadRequest},
	FacetIncompatibleWithContentType: {"The requested filter is not available for this content.", http.StatusBadRequest},
	ContextNotFound:                  {"The requested filter context does not exist.", http.StatusBadRequest},
	QueryExecutionError:              {"The content query could not be executed.", http.StatusInternalServerError},
	CacheError:                       {"The filter cache is unavailable.", http.StatusInternalServerError},
	GeneralError:                     {"Something went wrong while filtering.", http.StatusInternalServerError},
}

// Error is the typed failure carried through the filter engine.
type Error struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"status"`
	Data    map[string]any `json:"-"`
	cause   error
}

// New creates an error of the given kind with its default message and status.
func New(code Code, cause error) *Error {
	d, ok := defaults[code]
	if !ok {
		d = defaults[GeneralError]
	}
	return &Error{
		Code:    code,
		Message: d.message,
		Status:  d.status,
		Data:    map[string]any{},
		cause:   cause,
	}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// With attaches contextual data, e.g. the facet id or content type.
func (e *Error) With(key string, value any) *Error {
	e.Data[key] = value
	return e
}

func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
}

// UserMessage is what end users see; operators in debug mode also get the code.
func (e *Error) UserMessage(debug bool) string {
	if debug {
		return fmt.Sprintf("%s [%s]", e.Message, e.Code)
	}
	return e.Message
}

// Response is the wire form returned to the caller.
type Response struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *Error) Response(debug bool) Response {
	return Response{Code: e.Code, Message: e.UserMessage(debug), Status: e.Status}
}

// From maps any error onto the taxonomy; untyped errors become GeneralError.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return New(GeneralError, err)
}

func Is(err error, code Code) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Code == code
}

// FromPanic converts a recovered panic value into a GeneralError.
func FromPanic(r any) *Error {
	if err, ok := r.(error); ok {
		return New(GeneralError, fmt.Errorf("panic: %w", err))
	}
	return New(GeneralError, fmt.Errorf("panic: %v", r))
}

// Log records a recovered failure with its code and context.
func Log(logger *zap.Logger, msg string, err error) {
	if logger == nil || err == nil {
		return
	}
	fe := From(err)
	fields := make([]zap.Field, 0, len(fe.Data)+3)
	fields = append(fields, zap.String("code", string(fe.Code)), zap.Int("status", fe.Status))
	for k, v := range fe.Data {
		fields = append(fields, zap.Any(k, v))
	}
	if fe.cause != nil {
		fields = append(fields, zap.Error(fe.cause))
	}
	if fe.Status >= http.StatusInternalServerError {
		logger.Error(msg, fields...)
	} else {
		logger.Warn(msg, fields...)
	}
}

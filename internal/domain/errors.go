package domain

import "fmt"

type ErrCode string

const (
	CodeValidation   ErrCode = "validation_error"
	CodeNotFound     ErrCode = "not_found"
	CodeForbidden    ErrCode = "forbidden"
	CodeUnauthorized ErrCode = "unauthorized"
	CodeUnavailable  ErrCode = "unavailable"
	CodePersistence  ErrCode = "persistence_error"
	CodeInternal     ErrCode = "internal_error"
)

type AppError struct {
	Code    ErrCode
	Message string
	Meta    map[string]string
	Err     error
}

func (e *AppError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if len(e.Meta) > 0 {
		msg = fmt.Sprintf("%s (%v)", msg, e.Meta)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *AppError) Unwrap() error { return e.Err }

func ErrValidation(msg string) error { return &AppError{Code: CodeValidation, Message: msg} }
func ErrValidationMeta(msg string, meta map[string]string) error {
	return &AppError{Code: CodeValidation, Message: msg, Meta: meta}
}
func ErrNotFound(msg string) error     { return &AppError{Code: CodeNotFound, Message: msg} }
func ErrForbidden(msg string) error    { return &AppError{Code: CodeForbidden, Message: msg} }
func ErrUnauthorized(msg string) error { return &AppError{Code: CodeUnauthorized, Message: msg} }
func ErrUnavailable(msg string) error  { return &AppError{Code: CodeUnavailable, Message: msg} }

// ErrPersistence wraps a storage failure so callers can tell it apart from
// "nothing to do" outcomes.
func ErrPersistence(msg string, err error) error {
	return &AppError{Code: CodePersistence, Message: msg, Err: err}
}

package services

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindServer ErrorKind = iota
	KindValidation
	KindNotFound
	KindAlreadySubmitted
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindNotFound:
		return "NotFound"
	case KindAlreadySubmitted:
		return "AlreadySubmitted"
	case KindUnauthorized:
		return "Unauthorized"
	}
	return "ServerError"
}

// AppError carries a user-facing message and the category the HTTP layer maps
// to a status code.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func ValidationError(message string) error {
	return &AppError{Kind: KindValidation, Message: message}
}

func NotFound(message string) error {
	return &AppError{Kind: KindNotFound, Message: message}
}

func AlreadySubmitted(message string) error {
	return &AppError{Kind: KindAlreadySubmitted, Message: message}
}

func Unauthorized(message string) error {
	return &AppError{Kind: KindUnauthorized, Message: message}
}

// ServerError wraps an unexpected failure; the cause is logged, never shown.
func ServerError(err error) error {
	return &AppError{Kind: KindServer, Message: "Server error", Err: err}
}

// KindOf returns the category of err. Errors that are not AppErrors are server errors.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindServer
}

// MessageOf returns the user-facing message for err.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Server error"
}

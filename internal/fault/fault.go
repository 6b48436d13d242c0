package fault

import (
	"errors"
	"fmt"
)

// Code classifies why an import stopped
type Code string

const (
	Unknown         Code = "unknown"
	InputRead       Code = "input_read"
	InputFormat     Code = "input_format"
	Field           Code = "field"
	StoreConnection Code = "store_connection"
	StoreWrite      Code = "store_write"
)

// Error is a classified import failure. All codes are fatal.
type Error struct {
	code     Code
	message  string
	original error
}

// New creates a fault with the given code
func New(code Code, message string) *Error {
	return &Error{
		code:    code,
		message: message,
	}
}

// Newf creates a fault with a formatted message
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithOriginal returns a copy of the fault wrapping the underlying error
func (e *Error) WithOriginal(original error) *Error {
	c := *e
	c.original = original
	return &c
}

func (e *Error) Code() Code {
	return e.code
}

func (e *Error) Message() string {
	return e.message
}

func (e *Error) Error() string {
	if e.original != nil {
		return fmt.Sprintf("%s: %v", e.message, e.original)
	}
	return e.message
}

func (e *Error) Unwrap() error {
	return e.original
}

// CodeOf returns the code of the first fault in err's chain, or Unknown
func CodeOf(err error) Code {
	var f *Error
	if errors.As(err, &f) {
		return f.code
	}
	return Unknown
}

// Is reports whether err carries the given code
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

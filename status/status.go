// Package status defines the error taxonomy shared by every bqs package.
package status

import (
	"errors"
	"fmt"
)

// Code classifies an error returned by the router.
type Code int

// Codes, in the order the router checks for them.
const (
	CodeOK Code = iota
	CodeParamInvalid
	CodeInnerError
	CodeDriverError
	CodeEntityExist
	CodeGroupHasExist
	CodeGroupExistInRoute
	CodeRetry
)

var codeNames = map[Code]string{
	CodeOK:                "ok",
	CodeParamInvalid:      "param invalid",
	CodeInnerError:        "inner error",
	CodeDriverError:       "driver error",
	CodeEntityExist:       "entity exist",
	CodeGroupHasExist:     "group has exist",
	CodeGroupExistInRoute: "group exist in route",
	CodeRetry:             "retry",
}

func (c Code) String() string {
	name, ok := codeNames[c]
	if !ok {
		return fmt.Sprintf("code(%d)", int(c))
	}

	return name
}

// Error is an error tagged with a Code. Two Errors match under errors.Is when
// their codes are equal.
type Error struct {
	Code Code
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Code.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}

	if e.Msg != "" {
		msg += ": " + e.Msg
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}

	return t.Code == e.Code
}

// Sentinels for errors.Is comparisons.
var (
	ErrParamInvalid      = &Error{Code: CodeParamInvalid}
	ErrInnerError        = &Error{Code: CodeInnerError}
	ErrDriverError       = &Error{Code: CodeDriverError}
	ErrEntityExist       = &Error{Code: CodeEntityExist}
	ErrGroupHasExist     = &Error{Code: CodeGroupHasExist}
	ErrGroupExistInRoute = &Error{Code: CodeGroupExistInRoute}
	ErrRetry             = &Error{Code: CodeRetry}
)

// New creates an Error with a formatted message.
func New(code Code, op string, format string, args ...any) error {
	return &Error{
		Code: code,
		Op:   op,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// Wrap tags err with a code. It returns nil if err is nil.
func Wrap(code Code, op string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf extracts the code of err. Untagged errors are reported as
// CodeInnerError and nil as CodeOK.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return CodeInnerError
}

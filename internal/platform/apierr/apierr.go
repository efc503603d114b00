// Package apierr carries HTTP-mappable failures out of the lifecycle
// services. The gin layer passes these through untranslated, so a
// service can pin the exact status and machine code a caller sees
// without importing the transport.
package apierr

import "fmt"

// Error pairs an underlying failure with the status and stable code
// the API surface should emit.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("request failed (%d)", e.Status)
	}
	return "request failed"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

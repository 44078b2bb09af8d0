// Package apperror defines the error type every workflow operation returns
// to the HTTP layer. Each error carries the HTTP status it maps to.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error is an application error with an HTTP status and a client-safe
// message. Err, when set, is the underlying cause and is only logged.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with the given status and message.
func New(status int, msg string) *Error {
	return &Error{Status: status, Message: msg}
}

func BadRequest(msg string) *Error   { return New(http.StatusBadRequest, msg) }
func Unauthorized(msg string) *Error { return New(http.StatusUnauthorized, msg) }
func Forbidden(msg string) *Error    { return New(http.StatusForbidden, msg) }
func NotFound(msg string) *Error     { return New(http.StatusNotFound, msg) }
func Conflict(msg string) *Error     { return New(http.StatusConflict, msg) }

// Internal wraps an unexpected failure. The cause never reaches the client.
func Internal(msg string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: msg, Err: err}
}

// Validator collects validation failures so that a request reports every
// problem at once instead of the first one.
type Validator struct {
	msgs []string
}

// Check records msg when ok is false.
func (v *Validator) Check(ok bool, msg string) {
	if !ok {
		v.msgs = append(v.msgs, msg)
	}
}

// Add records msg unconditionally.
func (v *Validator) Add(msg string) { v.msgs = append(v.msgs, msg) }

// Err returns a 400 error joining all collected messages, or nil.
func (v *Validator) Err() error {
	if len(v.msgs) == 0 {
		return nil
	}
	return BadRequest(strings.Join(v.msgs, "; "))
}

// StatusOf resolves err into a status code and client message. Errors that
// are not *Error become a generic 500.
func StatusOf(err error) (int, string) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Message
	}
	return http.StatusInternalServerError, "internal server error"
}

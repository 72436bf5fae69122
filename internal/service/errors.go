package service

import (
	"errors"
	"net/http"
)

// Error carries the HTTP taxonomy of the API: validation (400),
// forbidden (403), not found (404), conflict (409), server (500).
// Conflicts are expected concurrency outcomes, not defects.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func errInvalid(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg}
}

func errForbidden(msg string) *Error {
	return &Error{Status: http.StatusForbidden, Message: msg}
}

func errNotFound(msg string) *Error {
	return &Error{Status: http.StatusNotFound, Message: msg}
}

func errConflict(msg string) *Error {
	return &Error{Status: http.StatusConflict, Message: msg}
}

func errInternal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: "Error servidor", Err: err}
}

// HTTPStatus maps any error to its response status.
func HTTPStatus(err error) int {
	var se *Error
	if errors.As(err, &se) {
		return se.Status
	}
	return http.StatusInternalServerError
}

// PublicMessage is the message safe to return to the client.
func PublicMessage(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return "Error servidor"
}

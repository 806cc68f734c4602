package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vocdoni/skillrating/log"
)

// Error is an API failure: the cause, a stable code clients can switch on and
// the HTTP status of the response.
type Error struct {
	Err        error
	Code       int
	HTTPstatus int
}

// ErrorResponse is the body of every non 200 response.
//
//	{"error":"ratee is not a member of the round","code":40012}
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// MarshalJSON encodes the error as an ErrorResponse. HTTPstatus travels as
// the response status instead.
func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(ErrorResponse{Error: e.Err.Error(), Code: e.Code})
}

func (e Error) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the cause, so engine sentinels survive the API wrapping.
func (e Error) Unwrap() error {
	return e.Err
}

// Is matches any API error carrying the same code.
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t.Code == e.Code
}

// Write sends the error as JSON with its HTTP status.
func (e Error) Write(w http.ResponseWriter) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Warn(err)
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	if log.Level() == log.LogLevelDebug {
		log.Debugw("api error response", "error", e.Error(), "code", e.Code, "httpStatus", e.HTTPstatus)
	}
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, string(msg), e.HTTPstatus)
}

func (e Error) wrap(err error) Error {
	return Error{Err: err, Code: e.Code, HTTPstatus: e.HTTPstatus}
}

// Withf appends a formatted detail to the message.
func (e Error) Withf(format string, args ...any) Error {
	return e.wrap(fmt.Errorf("%w: %s", e.Err, fmt.Sprintf(format, args...)))
}

// With appends s to the message.
func (e Error) With(s string) Error {
	return e.wrap(fmt.Errorf("%w: %s", e.Err, s))
}

// WithErr appends err to the message, keeping both errors in the chain.
func (e Error) WithErr(err error) Error {
	return e.wrap(fmt.Errorf("%w: %w", e.Err, err))
}

// Because returns the error with err as its whole message. It is used when
// err already names the failure.
func (e Error) Because(err error) Error {
	return e.wrap(err)
}

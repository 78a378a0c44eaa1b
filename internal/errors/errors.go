// Package errors holds the structured error type that handlers surface
// over HTTP when something other than a feed failure goes wrong.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Error pairs an HTTP status with the error being surfaced.
type Error struct {
	Status int
	Err    error // The error this wraps
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type transport struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(transport{
		Message: e.Err.Error(),
		Status:  e.Status,
	})
}

func (e *Error) UnmarshalJSON(byts []byte) error {
	t := transport{}
	if err := json.Unmarshal(byts, &t); err != nil {
		return err
	}

	e.Err = errors.New(t.Message)
	e.Status = t.Status
	return nil
}

// E builds an [Error] from the given arguments: a string or error becomes
// the wrapped error, an int the status. The status defaults to 500.
func E(args ...any) *Error {
	ret := &Error{
		Status: http.StatusInternalServerError,
	}

	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			ret.Err = errors.New(arg)
		case error:
			ret.Err = arg
		case int:
			ret.Status = arg
		}
	}

	return ret
}

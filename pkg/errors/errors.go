package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so callers can test against the
// predefined values even after Clone or Wrap.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors. Codes are stable and shared by every campus so a peer's
// error body can be translated back 1:1.
var (
	ErrInvalidID             = New("INVALID_ID", http.StatusBadRequest, "invalid id")
	ErrValidation            = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInvalidToken          = New("INVALID_TOKEN", http.StatusForbidden, "invalid token")
	ErrExpiredToken          = New("EXPIRED_TOKEN", http.StatusForbidden, "expired token")
	ErrNoPermission          = New("NO_PERMISSION", http.StatusForbidden, "you are not allowed to do this")
	ErrSelectionWindowClosed = New("SELECTION_WINDOW_CLOSED", http.StatusForbidden, "course selection is not open")
	ErrCourseNotFound        = New("COURSE_NOT_FOUND", http.StatusNotFound, "course does not exist")
	ErrTeacherNotFound       = New("TEACHER_NOT_FOUND", http.StatusNotFound, "teacher does not exist")
	ErrStudentNotFound       = New("STUDENT_NOT_FOUND", http.StatusNotFound, "student does not exist")
	ErrCapacityConflict      = New("CAPACITY_CONFLICT", http.StatusConflict, "course capacity conflict")
	ErrIDConflict            = New("ID_CONFLICT", http.StatusConflict, "course id conflict")
	ErrIDSpaceExhausted      = New("ID_SPACE_EXHAUSTED", http.StatusConflict, "no course id available")
	ErrAlreadySelected       = New("ALREADY_SELECTED", http.StatusConflict, "course already selected")
	ErrNotSelected           = New("NOT_SELECTED", http.StatusConflict, "course not selected")
	ErrBadGateway            = New("BAD_GATEWAY", http.StatusBadGateway, "bad gateway")
	ErrInternal              = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")

	// ErrCacheMiss is returned by cache lookups that found nothing.
	ErrCacheMiss = errors.New("cache miss")
)

var registry = func() map[string]*Error {
	known := []*Error{
		ErrInvalidID, ErrValidation, ErrInvalidToken, ErrExpiredToken, ErrNoPermission,
		ErrSelectionWindowClosed, ErrCourseNotFound, ErrTeacherNotFound, ErrStudentNotFound,
		ErrCapacityConflict, ErrIDConflict, ErrIDSpaceExhausted, ErrAlreadySelected,
		ErrNotSelected, ErrBadGateway, ErrInternal,
	}
	out := make(map[string]*Error, len(known))
	for _, e := range known {
		out[e.Code] = e
	}
	return out
}()

// Lookup returns the predefined error for code, if any.
func Lookup(code string) (*Error, bool) {
	e, ok := registry[code]
	return e, ok
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

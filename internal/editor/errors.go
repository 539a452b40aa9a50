package editor

import (
	"errors"
	"fmt"
)

var (
	// ErrDiscarded reports that a decode or encode finished after it was
	// superseded or after the session closed. Its result was dropped and no
	// session state changed; hosts should not surface it to users.
	ErrDiscarded = errors.New("result discarded")
	ErrClosed    = errors.New("edit session is closed")
	ErrNoSource  = errors.New("edit session has no source image")
	ErrFrozen    = errors.New("annotation is owned by the filter stage")
)

// ValidationError reports a missing or invalid input, such as applying a crop
// with no area selected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// DecodeError reports that the source image could not be loaded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return "decode error: " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodingError reports that a raster could not be serialized into a blob.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return "encoding error: " + e.Err.Error()
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

func validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

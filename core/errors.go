package core

import "github.com/pkg/errors"

// FieldError ties an error message to the JSON field that caused it.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is a client-correctable error. When Fields is set the API
// renders it as a field-keyed map, otherwise as a plain message.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// FieldMap returns the field errors keyed by field name, nil when the error
// carries none.
func (err ValidationError) FieldMap() map[string]string {
	if len(err.Fields) == 0 {
		return nil
	}
	flds := make(map[string]string, len(err.Fields))
	for _, fErr := range err.Fields {
		flds[fErr.Field] = fErr.Error
	}
	return flds
}

type shutdown struct {
	message string
}

// NewShutdownError flags an unrecoverable integrity problem; the server
// drains and exits when it surfaces.
func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}

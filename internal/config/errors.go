package config

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQuery means there is nothing to run for a non-zero duration.
	ErrEmptyQuery = errors.New("no query given (use --query or --queryfile)")
	// ErrOutOfRange marks a number outside its allowed bounds.
	ErrOutOfRange = errors.New("out of range")
	// ErrUnknownOutput marks an unrecognized output format.
	ErrUnknownOutput = errors.New("unknown output format")
)

// ParseError is a setting that could not be used as given. The default
// was substituted and the run goes on; callers print it as a warning.
type ParseError struct {
	Field   string
	Value   string
	Default string
	Err     error
}

func (e *ParseError) Error() string {
	switch {
	case errors.Is(e.Err, ErrOutOfRange):
		return fmt.Sprintf("%s argument %q out of range, defaulting to %s", e.Field, e.Value, e.Default)
	case errors.Is(e.Err, ErrUnknownOutput):
		return fmt.Sprintf("invalid output format %q, defaulting to %s", e.Value, e.Default)
	}
	return fmt.Sprintf("could not convert %s argument %q, defaulting to %s", e.Field, e.Value, e.Default)
}

func (e *ParseError) Unwrap() error { return e.Err }

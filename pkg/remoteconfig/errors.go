package remoteconfig

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingSection is returned when a required section or its body is absent.
	ErrMissingSection = errors.New("missing config section")
	// ErrMalformedPayload is returned when a section body is not the expected JSON.
	ErrMalformedPayload = errors.New("malformed config payload")
	// ErrInvalidValue is returned when a section parses but holds values
	// outside their allowed range.
	ErrInvalidValue = errors.New("invalid config value")
)

// ValidationError reports which section failed extraction.
type ValidationError struct {
	Section string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("remote config section %q: %s", e.Section, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func validationErr(section string, kind error, format string, args ...any) error {
	return &ValidationError{
		Section: section,
		Err:     fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...)),
	}
}

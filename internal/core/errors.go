package core

import "fmt"

// ValidationError is a user-correctable input problem. Message is safe to show.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// TranslationFailure reports that the provider could not produce a
// translation. A send that hits it stores nothing.
type TranslationFailure struct {
	Diagnostic string
	Err        error
}

func (e *TranslationFailure) Error() string {
	return "translation failed: " + e.Diagnostic
}

func (e *TranslationFailure) Unwrap() error {
	return e.Err
}

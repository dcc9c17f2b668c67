package config

import (
	"fmt"
	"strings"
)

// Failure is one violated rule, tagged with the property it concerns.
type Failure struct {
	Field      string `json:"field"`
	Message    string `json:"message"`
	Correction string `json:"correction,omitempty"`
}

func (f Failure) String() string {
	if f.Correction == "" {
		return fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return fmt.Sprintf("%s: %s %s", f.Field, f.Message, f.Correction)
}

// Failures accumulates every violation found in one validation pass.
type Failures []Failure

func (fs *Failures) add(field, message, correction string) {
	*fs = append(*fs, Failure{Field: field, Message: message, Correction: correction})
}

// Fields lists the tagged fields in order, one entry per failure.
func (fs Failures) Fields() []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Field
	}
	return out
}

// Has reports whether any failure is tagged with field.
func (fs Failures) Has(field string) bool {
	for _, f := range fs {
		if f.Field == field {
			return true
		}
	}
	return false
}

// Err returns nil when empty, otherwise a *ValidationError.
func (fs Failures) Err() error {
	if len(fs) == 0 {
		return nil
	}
	return &ValidationError{Failures: fs}
}

// ValidationError carries every configuration failure. It is never retried.
type ValidationError struct {
	Failures Failures
}

func (e *ValidationError) Error() string {
	if len(e.Failures) == 1 {
		return "invalid configuration: " + e.Failures[0].String()
	}
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.String()
	}
	return fmt.Sprintf("invalid configuration (%d failures): %s", len(e.Failures), strings.Join(parts, "; "))
}

package config

import (
	"fmt"
	"strings"

	"github.com/coral-mesh/stack-analyzer/internal/constants"
)

// Validator is the interface for validating configuration.
type Validator interface {
	Validate() error
}

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiValidationError represents multiple validation errors.
type MultiValidationError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}

	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("validation failed with %d errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		builder.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return builder.String()
}

// Normalize folds out-of-range values onto their effective meaning: a
// frequency below 1 samples at 1 Hz, any pid below 1 means every process and
// a run time past the default is the default.
func (c *Config) Normalize() {
	if c.Frequency < 1 {
		c.Frequency = 1
	}
	if c.PID < 1 {
		c.PID = constants.AllProcesses
	}
	if c.Duration > constants.DefaultDuration {
		c.Duration = constants.DefaultDuration
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errors []ValidationError

	if !c.Mode.Valid() {
		errors = append(errors, ValidationError{
			Field:   "mode",
			Message: fmt.Sprintf("unknown mode %d", int(c.Mode)),
		})
	}

	if c.Duration < 0 {
		errors = append(errors, ValidationError{
			Field:   "time",
			Message: "must not be negative",
		})
	}

	if c.Interval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "interval",
			Message: "must be positive",
		})
	}

	if c.Output.Dir == "" {
		errors = append(errors, ValidationError{
			Field:   "output.dir",
			Message: "output directory is required",
		})
	}

	if c.BPF.Dir == "" {
		errors = append(errors, ValidationError{
			Field:   "bpf.dir",
			Message: "BPF object directory is required",
		})
	}

	if len(errors) > 0 {
		return &MultiValidationError{Errors: errors}
	}

	return nil
}

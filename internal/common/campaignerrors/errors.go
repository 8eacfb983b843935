// Package campaignerrors contains the error types returned while preparing and running a verification campaign.
// Callers should wrap these with github.com/pkg/errors and inspect them with errors.As; the CLI only needs to know
// that any of them ends the run with a nonzero exit code.
package campaignerrors

import (
	"fmt"
	"strings"
)

// ErrNotFound is returned whenever some resource isn't found, e.g. a configuration file or a named scenario.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrNotFound struct {
	Type    string // Resource type, e.g., "scenario" or "file"
	Value   string // Resource name, e.g., "scenario_1"
	Message string // An optional message to include in the error message
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("%s %q not found", err.Type, err.Value)
	} else {
		s = fmt.Sprintf("%q not found", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	}
	return s
}

// ErrInvalidArgument is returned on an invalid configuration value or flag.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "speed.max"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for field %q", err.Value, err.Name)
	}
	return fmt.Sprintf("value %v is invalid for field %q; %s", err.Value, err.Name, err.Message)
}

// ErrMalformedTemplate is returned when the template's mutable declaration region can't be located unambiguously.
// This is an authoring error in the template and the run can't proceed.
type ErrMalformedTemplate struct {
	Line    int // 1-based line number the problem was detected at, 0 if not applicable
	Message string
}

func (err *ErrMalformedTemplate) Error() string {
	if err.Line > 0 {
		return fmt.Sprintf("malformed template at line %d: %s", err.Line, err.Message)
	}
	return fmt.Sprintf("malformed template: %s", err.Message)
}

// ErrEngineFailed is returned when the verification engine exits with a nonzero status.
type ErrEngineFailed struct {
	ModelPath    string
	PropertyPath string
	ExitCode     int
	Stderr       string
}

func (err *ErrEngineFailed) Error() string {
	s := fmt.Sprintf("engine exited with status %d verifying %s against %s", err.ExitCode, err.PropertyPath, err.ModelPath)
	if stderr := strings.TrimSpace(err.Stderr); stderr != "" {
		s += ": " + stderr
	}
	return s
}

// ErrDecode is returned when engine output doesn't have the shape expected for its property kind.
type ErrDecode struct {
	Production string // Grammar production that failed, e.g. "interval"
	Input      string // Offending input, usually a single line
	Message    string
}

func (err *ErrDecode) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("cannot decode %s from %q", err.Production, err.Input)
	}
	return fmt.Sprintf("cannot decode %s from %q; %s", err.Production, err.Input, err.Message)
}

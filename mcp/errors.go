// Package mcp exposes Open Payments flows as Model Context Protocol tools.
package mcp

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument indicates a tool argument that is missing or malformed.
var ErrInvalidArgument = errors.New("invalid tool argument")

// ToolError wraps an error with the tool and flow it happened in.
type ToolError struct {
	Err  error
	Tool string
	Flow string
}

func (e *ToolError) Error() string {
	if e.Flow != "" {
		return fmt.Sprintf("%s (flow %s): %v", e.Tool, e.Flow, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// WrapToolError wraps err as a ToolError. A nil err stays nil.
func WrapToolError(err error, tool, flowID string) error {
	if err == nil {
		return nil
	}
	return &ToolError{Err: err, Tool: tool, Flow: flowID}
}

// InvalidArgument reports a bad value for the named argument.
func InvalidArgument(name string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrInvalidArgument, name)
	}
	return fmt.Errorf("%w: %s: %v", ErrInvalidArgument, name, err)
}

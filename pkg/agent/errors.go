package agent

import (
	"fmt"
	"strings"
)

// ConfigValidationError reports a create config that failed schema
// validation. No network call was made.
type ConfigValidationError struct {
	Problems []string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid agent create config: %s", strings.Join(e.Problems, "; "))
}

// CompileError carries the platform's own compile failure messages,
// concatenated.
type CompileError struct {
	Failures []string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("agent compilation failed: %s", strings.Join(e.Failures, "; "))
}

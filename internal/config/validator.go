package config

import (
	"fmt"
	"os"
	"regexp"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIEnv validates the API environment toggle
func (v *Validator) ValidateAPIEnv(env string) error {
	if env != EnvProd && env != EnvTest {
		return fmt.Errorf("invalid api env %q (must be: prod, test)", env)
	}
	return nil
}

// ValidateMockDir validates the fixture root. An empty value means live
// mode and is valid; a set value must name an existing directory.
func (v *Validator) ValidateMockDir(dir string) error {
	if dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Errorf("mock directory %s does not exist", dir)
	}
	if err != nil {
		return fmt.Errorf("failed to stat mock directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mock directory %s is not a directory", dir)
	}

	return nil
}

// ValidateAgentName validates a local agent bundle name. Names become
// file names (<name>.agent) and path components under .sfdx/agents/.
func (v *Validator) ValidateAgentName(name string) error {
	if name == "" {
		return fmt.Errorf("agent name cannot be empty")
	}

	pattern := regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	if !pattern.MatchString(name) {
		return fmt.Errorf("invalid agent name %q (letters, digits and underscores only, must start with a letter)", name)
	}

	return nil
}

// ValidateLogLevel validates a log level name
func (v *Validator) ValidateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("invalid log level %q (must be: debug, info, warn, error)", level)
	}
}

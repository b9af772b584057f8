package agent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SaveSpec writes a spec as YAML.
func SaveSpec(spec *Spec, path string) error {
	data, err := yaml.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to marshal agent spec: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write agent spec: %w", err)
	}

	return nil
}

// LoadSpec reads a YAML spec back.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent spec: %w", err)
	}

	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse agent spec: %w", err)
	}

	return &spec, nil
}

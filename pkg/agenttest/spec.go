package agenttest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TestSpec describes an evaluation: the agent under test and the
// cases to run against it. Persisted as YAML.
type TestSpec struct {
	Name        string     `yaml:"name,omitempty"`
	Description string     `yaml:"description,omitempty"`
	SubjectType string     `yaml:"subjectType"`
	SubjectName string     `yaml:"subjectName"`
	TestCases   []TestCase `yaml:"testCases"`
}

// TestCase is one utterance and the expectations on the agent's
// handling of it.
type TestCase struct {
	Utterance       string   `yaml:"utterance"`
	ExpectedTopic   string   `yaml:"expectedTopic,omitempty"`
	ExpectedActions []string `yaml:"expectedActions,omitempty"`
	ExpectedOutcome string   `yaml:"expectedOutcome,omitempty"`
}

// Validate checks the spec is runnable.
func (s *TestSpec) Validate() error {
	if s.SubjectType == "" {
		return fmt.Errorf("subjectType is required")
	}
	if s.SubjectName == "" {
		return fmt.Errorf("subjectName is required")
	}
	if len(s.TestCases) == 0 {
		return fmt.Errorf("at least one test case is required")
	}
	for i, tc := range s.TestCases {
		if tc.Utterance == "" {
			return fmt.Errorf("test case %d: utterance is required", i+1)
		}
	}
	return nil
}

// SaveSpec writes a test spec as YAML.
func SaveSpec(spec *TestSpec, path string) error {
	data, err := yaml.Marshal(spec)
	if err != nil {
		return fmt.Errorf("failed to marshal test spec: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write test spec: %w", err)
	}

	return nil
}

// LoadSpec reads and validates a YAML test spec.
func LoadSpec(path string) (*TestSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test spec: %w", err)
	}

	var spec TestSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse test spec: %w", err)
	}

	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid test spec: %w", err)
	}

	return &spec, nil
}

package agenttest

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
)

// ResultFormat selects an output rendering for test results.
type ResultFormat string

const (
	FormatJSON  ResultFormat = "json"
	FormatJUnit ResultFormat = "junit"
	FormatTAP   ResultFormat = "tap"
)

// TestResults is the results document for one evaluation run.
type TestResults struct {
	Status       string           `json:"status"`
	StartTime    string           `json:"startTime,omitempty"`
	EndTime      string           `json:"endTime,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	TestCases    []TestCaseResult `json:"testCases"`
}

// TestCaseResult is the outcome of one test case.
type TestCaseResult struct {
	Number        int                 `json:"testNumber"`
	Status        string              `json:"status"`
	Utterance     string              `json:"utterance,omitempty"`
	GeneratedData GeneratedData       `json:"generatedData"`
	Expectations  []ExpectationResult `json:"testResults"`
}

// GeneratedData is what the agent actually did for one utterance.
type GeneratedData struct {
	Topic           string   `json:"topic,omitempty"`
	ActionsSequence []string `json:"actionsSequence,omitempty"`
	Outcome         string   `json:"outcome,omitempty"`
}

// ExpectationResult is one metric evaluated against one test case.
type ExpectationResult struct {
	Name          string  `json:"name"`
	ActualValue   string  `json:"actualValue"`
	ExpectedValue string  `json:"expectedValue"`
	Score         float64 `json:"score,omitempty"`
	Result        string  `json:"result"`
	MetricLabel   string  `json:"metricLabel,omitempty"`
	ErrorMessage  string  `json:"errorMessage,omitempty"`
}

// Passed reports whether the expectation held.
func (e ExpectationResult) Passed() bool {
	return strings.EqualFold(e.Result, "PASS")
}

// ConvertTestResultsToFormat renders results in the requested format.
// All three renderings are pure transforms of the same document.
func ConvertTestResultsToFormat(results *TestResults, format ResultFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(results)
	case FormatJUnit:
		return formatJUnit(results)
	case FormatTAP:
		return formatTAP(results), nil
	default:
		return "", fmt.Errorf("unknown result format %q", format)
	}
}

func formatJSON(results *TestResults) (string, error) {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal results: %w", err)
	}
	return string(data), nil
}

// JUnit rendering. Tag and attribute names are fixed; CI consumers
// parse them literally.

type junitTestSuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Suites   []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name       string         `xml:"name,attr"`
	Assertions int            `xml:"assertions,attr"`
	Failures   []junitFailure `xml:"failure"`
}

type junitFailure struct {
	Name    string `xml:"name,attr"`
	Message string `xml:"message,attr"`
}

func formatJUnit(results *TestResults) (string, error) {
	suites := junitTestSuites{
		Tests: len(results.TestCases),
	}

	for _, tc := range results.TestCases {
		suite := junitTestSuite{
			Name:       fmt.Sprintf("test-case-%d", tc.Number),
			Assertions: len(tc.Expectations),
		}

		// Only failing metrics appear as children.
		for _, exp := range tc.Expectations {
			if exp.Passed() {
				continue
			}
			suites.Failures++
			suite.Failures = append(suite.Failures, junitFailure{
				Name:    exp.Name,
				Message: exp.ActualValue,
			})
		}

		suites.Suites = append(suites.Suites, suite)
	}

	data, err := xml.MarshalIndent(suites, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal junit results: %w", err)
	}

	return xml.Header + string(data), nil
}

// TAP rendering: one test point per expectation across all cases,
// failing points followed by a YAML-ish diagnostic block.
func formatTAP(results *TestResults) string {
	var sb strings.Builder

	total := 0
	for _, tc := range results.TestCases {
		total += len(tc.Expectations)
	}
	fmt.Fprintf(&sb, "1..%d\n", total)

	point := 0
	for _, tc := range results.TestCases {
		for _, exp := range tc.Expectations {
			point++
			description := fmt.Sprintf("%d.%s", tc.Number, exp.Name)

			if exp.Passed() {
				fmt.Fprintf(&sb, "ok %d %s\n", point, description)
				continue
			}

			fmt.Fprintf(&sb, "not ok %d %s\n", point, description)
			sb.WriteString("  ---\n")
			fmt.Fprintf(&sb, "  message: %s\n", tapMessage(exp))
			fmt.Fprintf(&sb, "  expectation: %s\n", exp.Name)
			fmt.Fprintf(&sb, "  actual: %s\n", exp.ActualValue)
			fmt.Fprintf(&sb, "  expected: %s\n", exp.ExpectedValue)
			sb.WriteString("  ...\n")
		}
	}

	return sb.String()
}

func tapMessage(exp ExpectationResult) string {
	if exp.ErrorMessage != "" {
		return exp.ErrorMessage
	}
	return "Actual response does not match expected response"
}

package agenttest

import (
	"encoding/json"
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() *TestResults {
	return &TestResults{
		Status: StatusCompleted,
		TestCases: []TestCaseResult{
			{
				Number:    1,
				Status:    StatusCompleted,
				Utterance: "Do you have rooms this weekend?",
				GeneratedData: GeneratedData{
					Topic:           "Reservations",
					ActionsSequence: []string{"CheckAvailability"},
					Outcome:         "Rooms offered",
				},
				Expectations: []ExpectationResult{
					{Name: "topic_sequence_match", ActualValue: "Reservations", ExpectedValue: "Reservations", Result: "PASS"},
					{Name: "action_sequence_match", ActualValue: `["CheckAvailability"]`, ExpectedValue: `["CheckAvailability"]`, Result: "PASS"},
				},
			},
			{
				Number: 2,
				Status: StatusCompleted,
				Expectations: []ExpectationResult{
					{Name: "topic_sequence_match", ActualValue: "Amenities", ExpectedValue: "Reservations", Result: "FAILURE"},
					{Name: "bot_response_rating", ActualValue: "0.4", ExpectedValue: ">= 0.8", Result: "PASS"},
				},
			},
			{
				Number: 3,
				Status: StatusCompleted,
				Expectations: []ExpectationResult{
					{Name: "topic_sequence_match", ActualValue: "Reservations", ExpectedValue: "Reservations", Result: "PASS"},
				},
			},
		},
	}
}

func TestConvert_JSONRoundTrip(t *testing.T) {
	results := sampleResults()

	out, err := ConvertTestResultsToFormat(results, FormatJSON)
	require.NoError(t, err)

	var parsed TestResults
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, *results, parsed)
}

func TestConvert_JUnitCounts(t *testing.T) {
	// 3 test cases, 1 failing metric overall.
	out, err := ConvertTestResultsToFormat(sampleResults(), FormatJUnit)
	require.NoError(t, err)

	assert.Contains(t, out, `<testsuites tests="3" failures="1">`)

	// Only the failing metric appears as a failure child.
	assert.Equal(t, 1, strings.Count(out, "<failure"))
	assert.Contains(t, out, `<failure name="topic_sequence_match" message="Amenities">`)

	// One suite per test case.
	assert.Equal(t, 3, strings.Count(out, "<testsuite "))
	assert.True(t, strings.HasPrefix(out, xmlHeaderLine), "output must start with the XML declaration")
}

const xmlHeaderLine = `<?xml version="1.0" encoding="UTF-8"?>`

func TestConvert_JUnitParses(t *testing.T) {
	out, err := ConvertTestResultsToFormat(sampleResults(), FormatJUnit)
	require.NoError(t, err)

	var parsed junitTestSuites
	require.NoError(t, xml.Unmarshal([]byte(out), &parsed))
	assert.Equal(t, 3, parsed.Tests)
	assert.Equal(t, 1, parsed.Failures)
	require.Len(t, parsed.Suites, 3)
	assert.Empty(t, parsed.Suites[0].Failures)
	require.Len(t, parsed.Suites[1].Failures, 1)
	assert.Equal(t, "topic_sequence_match", parsed.Suites[1].Failures[0].Name)
}

func TestConvert_TAP(t *testing.T) {
	out, err := ConvertTestResultsToFormat(sampleResults(), FormatTAP)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	// 5 expectations across the 3 test cases.
	assert.Equal(t, "1..5", lines[0])

	assert.Equal(t, "ok 1 1.topic_sequence_match", lines[1])
	assert.Equal(t, "ok 2 1.action_sequence_match", lines[2])
	assert.Equal(t, "not ok 3 2.topic_sequence_match", lines[3])

	// Diagnostic block follows the failing point.
	assert.Equal(t, "  ---", lines[4])
	assert.Contains(t, lines[5], "message: ")
	assert.Contains(t, lines[6], "expectation: topic_sequence_match")
	assert.Contains(t, lines[7], "actual: Amenities")
	assert.Contains(t, lines[8], "expected: Reservations")
	assert.Equal(t, "  ...", lines[9])

	assert.Equal(t, "ok 4 2.bot_response_rating", lines[10])
	assert.Equal(t, "ok 5 3.topic_sequence_match", lines[11])
}

func TestConvert_UnknownFormat(t *testing.T) {
	_, err := ConvertTestResultsToFormat(sampleResults(), "csv")
	assert.ErrorContains(t, err, "unknown result format")
}

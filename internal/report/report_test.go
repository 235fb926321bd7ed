package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zytedata/onefile/internal/model"
)

// fixtureSummary creates a sample summary for testing.
func fixtureSummary() *model.Summary {
	return &model.Summary{
		Format:    model.FormatJUnit,
		Name:      "pytest",
		Sources:   []string{"shard-1/junit.xml", "shard-2/junit.xml"},
		Output:    "junit.xml",
		Tests:     4,
		Passed:    1,
		Failed:    1,
		Errors:    1,
		Skipped:   1,
		Time:      401.446,
		Timestamp: time.Date(2024, 1, 7, 18, 50, 9, 552277000, time.UTC),
		Changes: []model.Change{
			{Test: "tests.test_animals::test_dog[white]", From: "Passed", To: "Failed", Source: 1, Kind: model.ChangeRegressed},
		},
		Failures: []model.Failure{
			{Test: "tests.test_animals::test_dog[white]", Outcome: "Failed", Excerpt: "AssertionError: Locator expected to be visible", Signature: model.SignatureAssertion},
			{Test: "tests.test_animals::test_dog[small]", Outcome: "Error", Excerpt: "There is no small dog in the town", Signature: model.SignatureUnknown},
		},
		SignatureSummary: map[string]int{
			"ASSERTION": 1,
			"UNKNOWN":   1,
		},
	}
}

func TestRenderTerminal(t *testing.T) {
	var buf bytes.Buffer
	cfg := &TerminalConfig{
		Writer:  &buf,
		TopN:    5,
		NoColor: true,
	}

	require.NoError(t, RenderTerminal(cfg, fixtureSummary()))
	got := buf.String()

	for _, want := range []string{
		"=== Merged JUnit Report ===",
		"Name:      pytest",
		"Sources:   2",
		"Timestamp: 2024-01-07T18:50:09.552277Z",
		"Time:      401.446s",
		"OUTCOME",
		"Changed Outcomes (1):",
		"shard-2/junit.xml",
		"regressed",
		"1. tests.test_animals::test_dog[white] [ASSERTION]",
		"Excerpt: There is no small dog in the town",
		"ASSERTION: 1",
		"Output: junit.xml",
	} {
		assert.Contains(t, got, want)
	}
	assert.NotContains(t, got, "XFailed", "pytest-html counters are not shown for JUnit")
	assert.NotContains(t, got, "\x1b[", "no color escapes when color is disabled")
}

func TestRenderTerminalHTML(t *testing.T) {
	summary := &model.Summary{
		Format:  model.FormatHTML,
		Name:    "report.html",
		Tests:   8,
		Passed:  4,
		XFailed: 1,
		XPassed: 1,
	}

	var buf bytes.Buffer
	require.NoError(t, RenderTerminal(&TerminalConfig{Writer: &buf, NoColor: true}, summary))

	got := buf.String()
	assert.Contains(t, got, "=== Merged pytest-html Report ===")
	assert.Contains(t, got, "XFailed")
	assert.Contains(t, got, "Reruns")
	assert.Contains(t, got, "No failing tests.")
	assert.Contains(t, got, "Timestamp: -")
	assert.NotContains(t, got, "Changed Outcomes")
}

func TestRenderTerminalTopN(t *testing.T) {
	summary := fixtureSummary()

	var buf bytes.Buffer
	require.NoError(t, RenderTerminal(&TerminalConfig{Writer: &buf, TopN: 1, NoColor: true}, summary))

	got := buf.String()
	assert.Contains(t, got, "1. tests.test_animals::test_dog[white]")
	assert.NotContains(t, got, "2. tests.test_animals::test_dog[small]")
	assert.Contains(t, got, "... and 1 more")
}

func TestRenderTerminalErrors(t *testing.T) {
	assert.Error(t, RenderTerminal(&TerminalConfig{}, fixtureSummary()))
	assert.Error(t, RenderTerminal(DefaultTerminalConfig(&bytes.Buffer{}), nil))
}

// TestMarkdownOutputGolden is a golden test for markdown output.
func TestMarkdownOutputGolden(t *testing.T) {
	got := RenderMarkdown(fixtureSummary())
	goldenPath := filepath.Join("testdata", "markdown_output.golden")

	if os.Getenv("UPDATE_GOLDEN") == "1" {
		require.NoError(t, os.WriteFile(goldenPath, []byte(got), 0o644))
		t.Logf("Updated golden file: %s", goldenPath)
		return
	}

	want, err := os.ReadFile(goldenPath)
	require.NoError(t, err, "run with UPDATE_GOLDEN=1 to create it")

	if diff := cmp.Diff(string(want), got); diff != "" {
		t.Errorf("markdown output mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderMarkdownWithoutChanges(t *testing.T) {
	summary := fixtureSummary()
	summary.Changes = nil

	got := RenderMarkdown(summary)
	assert.Contains(t, got, "No outcome was replaced by a newer source.")
	assert.Empty(t, RenderMarkdown(nil))
}

func TestWriteMarkdown(t *testing.T) {
	fs := afero.NewMemMapFs()

	require.NoError(t, WriteMarkdown(fs, "out/summary.md", fixtureSummary()))

	data, err := afero.ReadFile(fs, "out/summary.md")
	require.NoError(t, err)
	assert.Equal(t, RenderMarkdown(fixtureSummary()), string(data))

	assert.Error(t, WriteMarkdown(fs, "out/summary.md", nil))
}

// TestJSONOutputStable tests that JSON output is stable.
func TestJSONOutputStable(t *testing.T) {
	data1, err := MarshalJSON(fixtureSummary())
	require.NoError(t, err)

	data2, err := MarshalJSON(fixtureSummary())
	require.NoError(t, err)

	assert.Equal(t, string(data1), string(data2))
}

func TestWriteJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	summary := fixtureSummary()

	require.NoError(t, WriteJSON(fs, "summary.json", summary))

	data, err := afero.ReadFile(fs, "summary.json")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "}\n"))

	var decoded model.Summary
	require.NoError(t, json.Unmarshal(data, &decoded))

	if diff := cmp.Diff(*summary, decoded); diff != "" {
		t.Errorf("JSON round trip mismatch (-want +got):\n%s", diff)
	}

	assert.Error(t, WriteJSON(fs, "summary.json", nil))
}

func TestFromSuite(t *testing.T) {
	suite := model.TestSuite{
		Name:      "pytest",
		Errors:    1,
		Failures:  1,
		Skipped:   1,
		Tests:     4,
		Time:      12.5,
		Timestamp: time.Date(2024, 1, 7, 18, 50, 9, 0, time.UTC),
		TestCases: []model.TestCase{
			{Classname: "t", Name: "test_dog[small]", Error: &model.Message{Message: "There is no small dog in the town"}},
			{Classname: "t", Name: "test_dog[white]", Failure: &model.Message{Message: "AssertionError"}},
			{Classname: "t", Name: "test_tiger", Skipped: &model.Skip{Type: "pytest.xfail"}},
			{Classname: "t", Name: "test_cat"},
		},
	}

	summary := FromSuite(suite, []string{"a.xml", "b.xml"}, "junit.xml", nil)

	assert.Equal(t, model.FormatJUnit, summary.Format)
	assert.Equal(t, 4, summary.Tests)
	assert.Equal(t, 1, summary.Passed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Skipped)
	assert.NotNil(t, summary.Changes)
	assert.Len(t, summary.Failures, 2)
	assert.Equal(t, map[string]int{"ASSERTION": 1, "UNKNOWN": 1}, summary.SignatureSummary)
}

func TestFromRun(t *testing.T) {
	run := model.Run{
		Title:    "report.html",
		Tests:    3,
		Passed:   1,
		Failed:   1,
		XPassed:  1,
		Duration: 2.5,
		Results: []model.Result{
			{Test: "test_a", Outcome: model.OutcomePassed},
			{Test: "test_b", Outcome: model.OutcomeFailed, Log: "E   assert 1 == 2"},
			{Test: "test_c", Outcome: model.OutcomeXPassed},
		},
	}
	changes := []model.Change{{Test: "test_b", From: "Passed", To: "Failed", Kind: model.ChangeRegressed}}

	summary := FromRun(run, []string{"report_1.html"}, "report.html", changes)

	assert.Equal(t, model.FormatHTML, summary.Format)
	assert.Equal(t, "report.html", summary.Name)
	assert.Equal(t, 1, summary.XPassed)
	assert.InDelta(t, 2.5, summary.Time, 1e-9)
	assert.Equal(t, changes, summary.Changes)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, model.SignatureAssertion, summary.Failures[0].Signature)
}

func TestTruncateForTerminal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{name: "short", input: "Short error", maxLen: 80, expected: "Short error"},
		{name: "newlines collapsed", input: "line one\n  line two", maxLen: 80, expected: "line one line two"},
		{name: "truncated", input: "abcdefghij", maxLen: 8, expected: "abcde..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := truncateForTerminal(tc.input, tc.maxLen); got != tc.expected {
				t.Errorf("truncateForTerminal() = %q, want %q", got, tc.expected)
			}
		})
	}
}

func TestTruncateForTerminalWideRunes(t *testing.T) {
	got := truncateForTerminal(strings.Repeat("日本", 50), 80)

	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, runewidth.StringWidth(got), 80)
	assert.Equal(t, strings.Repeat("日本", 19)+"...", got)
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `test_a\|b`, escapeMarkdown("test_a|b"))
}

func TestSortedSignatures(t *testing.T) {
	got := sortedSignatures(map[string]int{"UNKNOWN": 1, "TIMEOUT": 3, "ASSERTION": 1})

	want := []signatureCount{
		{Name: "TIMEOUT", Count: 3},
		{Name: "ASSERTION", Count: 1},
		{Name: "UNKNOWN", Count: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("sortedSignatures() mismatch (-want +got):\n%s", diff)
	}
}

package junit

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zytedata/onefile/internal/merge"
	"github.com/zytedata/onefile/internal/model"
)

var fixedNow = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

func newFixtureAdapter() *Adapter {
	return New(afero.NewReadOnlyFs(afero.NewOsFs()),
		WithClock(func() time.Time { return fixedNow }),
		WithLocation(time.UTC),
	)
}

func TestParseSkipped(t *testing.T) {
	suites, err := newFixtureAdapter().Parse("testdata/junit_2.xml")
	require.NoError(t, err)
	require.Len(t, suites, 1)

	suite := suites[0]
	assert.Equal(t, 1, suite.Skipped)
	require.NotNil(t, suite.TestCases[0].Skipped)
	assert.Equal(t, "The tiger doesn't want to be a puppet", suite.TestCases[0].Skipped.Message)
	assert.Equal(t, "pytest.xfail", suite.TestCases[0].Skipped.Type)
	assert.Empty(t, suite.TestCases[0].Skipped.Text)
}

func TestParseErrorsAndFailures(t *testing.T) {
	suites, err := newFixtureAdapter().Parse("testdata/junit_1.xml")
	require.NoError(t, err)
	require.Len(t, suites, 1)

	suite := suites[0]
	assert.Equal(t, "pytest", suite.Name)
	assert.Equal(t, "localhost", suite.Hostname)
	assert.Equal(t, 1, suite.Errors)
	assert.Equal(t, 1, suite.Failures)
	assert.Equal(t, 5, suite.Tests)
	assert.InDelta(t, 150.2, suite.Time, 1e-9)
	assert.Equal(t, time.Date(2024, 1, 7, 18, 40, 0, 0, time.UTC), suite.Timestamp)

	dog := suite.TestCases[0]
	require.NotNil(t, dog.Error)
	assert.Equal(t, "There is no small dog in the town", dog.Error.Message)
	assert.Empty(t, dog.Error.Text)
	assert.InDelta(t, 0.003, dog.Time, 1e-9)

	white := suite.TestCases[1]
	require.NotNil(t, white.Failure)
	assert.Equal(t, "AssertionError: Locator expected to be visible", white.Failure.Message)
	assert.Equal(t, "AssertionError!!!", white.Failure.Text)

	assert.Equal(t, model.SetOf(model.OutcomePassed), suite.TestCases[2].Outcomes())
}

func TestParseSingleSuiteRoot(t *testing.T) {
	suites, err := newFixtureAdapter().Parse("testdata/single_suite.xml")
	require.NoError(t, err)
	require.Len(t, suites, 1)

	suite := suites[0]
	assert.Equal(t, "go", suite.Name)
	assert.Equal(t, fixedNow, suite.Timestamp, "missing timestamp defaults to the clock")
	assert.Equal(t, 0, suite.Errors, "missing counters default to zero")
	require.Len(t, suite.TestCases, 2)
	require.NotNil(t, suite.TestCases[1].Failure)
	assert.Contains(t, suite.TestCases[1].Failure.Text, "expected 8, got 7")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		errContains string
	}{
		{name: "missing file", path: "testdata/nope.xml", errContains: "failed to open file"},
		{name: "malformed XML", path: "testdata/malformed.xml", errContains: "invalid XML"},
		{name: "wrong root", path: "testdata/wrong_root.xml", errContains: "unexpected root element <coverage>"},
		{name: "bad counter", path: "testdata/bad_counter.xml", errContains: "attribute tests"},
		{name: "bad timestamp", path: "testdata/bad_timestamp.xml", errContains: "unparsable timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newFixtureAdapter().Parse(tt.path)
			require.Error(t, err)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, tt.path, parseErr.File)
			assert.Contains(t, err.Error(), tt.errContains)
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)

	tests := []struct {
		in   string
		loc  *time.Location
		want time.Time
	}{
		{"2024-01-07T18:50:09.552277", time.UTC, time.Date(2024, 1, 7, 18, 50, 9, 552277000, time.UTC)},
		{"2024-01-07T18:50:09", time.UTC, time.Date(2024, 1, 7, 18, 50, 9, 0, time.UTC)},
		{"2024-01-07 18:50:09.552277", time.UTC, time.Date(2024, 1, 7, 18, 50, 9, 552277000, time.UTC)},
		{"2024-01-07T18:50:09Z", tokyo, time.Date(2024, 1, 7, 18, 50, 9, 0, time.UTC)},
		{"2024-01-07T18:50:09.5+02:00", tokyo, time.Date(2024, 1, 7, 16, 50, 9, 500000000, time.UTC)},
		{"2024-01-07T18:50:09", tokyo, time.Date(2024, 1, 7, 9, 50, 9, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.in+" "+tt.loc.String(), func(t *testing.T) {
			got, err := ParseTimestamp(tt.in, tt.loc)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestMergeFixtures(t *testing.T) {
	adapter := newFixtureAdapter()

	var suites []model.TestSuite
	for _, path := range []string{"testdata/junit_1.xml", "testdata/junit_2.xml", "testdata/junit_3.xml"} {
		parsed, err := adapter.Parse(path)
		require.NoError(t, err)
		suites = append(suites, parsed...)
	}

	merged := merge.New(nil).Suites(suites)

	assert.Equal(t, "pytest", merged.Name)
	assert.Equal(t, 1, merged.Errors)
	assert.Equal(t, 1, merged.Failures)
	assert.Equal(t, 1, merged.Skipped)
	assert.Equal(t, 9, merged.Tests)
	assert.InDelta(t, 401.446, merged.Time, 1e-9)
	assert.Equal(t, "2024-01-07T18:50:09.552277", FormatTimestamp(merged.Timestamp, time.UTC))
	assert.Equal(t, "localhost", merged.Hostname)

	for _, tc := range merged.TestCases {
		switch tc.Name {
		case "test_dog[small]":
			require.NotNil(t, tc.Error)
			assert.Equal(t, "There is no small dog in the town", tc.Error.Message)
			assert.Empty(t, tc.Error.Text)
		case "test_dog[white]":
			require.NotNil(t, tc.Failure)
			assert.Equal(t, "AssertionError: Locator expected to be visible", tc.Failure.Message)
			assert.Equal(t, "AssertionError!!!", tc.Failure.Text)
		case "test_tiger":
			require.NotNil(t, tc.Skipped)
			assert.Equal(t, "pytest.xfail", tc.Skipped.Type)
			assert.Equal(t, "The tiger doesn't want to be a puppet", tc.Skipped.Message)
			assert.Empty(t, tc.Skipped.Text)
		default:
			assert.Nil(t, tc.Error, tc.Name)
			assert.Nil(t, tc.Failure, tc.Name)
			assert.Nil(t, tc.Skipped, tc.Name)
		}
	}
}

func TestEncode(t *testing.T) {
	suite := model.TestSuite{
		Name:      "pytest",
		Hostname:  "localhost",
		Errors:    1,
		Failures:  1,
		Skipped:   1,
		Tests:     4,
		Time:      401.446,
		Timestamp: time.Date(2024, 1, 7, 18, 50, 9, 552277000, time.UTC),
		TestCases: []model.TestCase{
			{Classname: "t", Name: "test_dog[small]", Time: 0.003, Error: &model.Message{Message: "There is no small dog in the town"}},
			{Classname: "t", Name: "test_dog[white]", Time: 12.5, Failure: &model.Message{Message: "AssertionError", Text: "AssertionError!!!"}},
			{Classname: "t", Name: "test_tiger", Skipped: &model.Skip{Type: "pytest.xfail"}},
			{Classname: "t", Name: "test_cat", Time: 1},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, suite))

	want := `<?xml version="1.0" encoding="UTF-8"?>
<testsuites>
  <testsuite name="pytest" errors="1" failures="1" skipped="1" tests="4" time="401.446" timestamp="2024-01-07T18:50:09.552277" hostname="localhost">
    <testcase classname="t" name="test_dog[small]" time="0.003">
      <error message="There is no small dog in the town"></error>
    </testcase>
    <testcase classname="t" name="test_dog[white]" time="12.5">
      <failure message="AssertionError">AssertionError!!!</failure>
    </testcase>
    <testcase classname="t" name="test_tiger" time="0">
      <skipped type="pytest.xfail"></skipped>
    </testcase>
    <testcase classname="t" name="test_cat" time="1"></testcase>
  </testsuite>
</testsuites>
`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("Encode() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "<testsuite "))
}

func TestWriteRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	adapter := New(fs, WithClock(func() time.Time { return fixedNow }))

	suite := model.TestSuite{
		Name:      "pytest",
		Hostname:  "ci-runner",
		Errors:    1,
		Tests:     2,
		Time:      3.25,
		Timestamp: time.Date(2024, 1, 7, 18, 50, 9, 552277000, time.UTC),
		TestCases: []model.TestCase{
			{Classname: "a", Name: "test_one", Time: 1.5, Error: &model.Message{Message: "boom", Text: "Traceback <most recent call last>"}},
			{Classname: "a", Name: "test_two", Time: 1.75},
		},
	}

	require.NoError(t, adapter.Write("out/junit.xml", suite))

	got, err := adapter.Parse("out/junit.xml")
	require.NoError(t, err)
	require.Len(t, got, 1)
	if diff := cmp.Diff(suite, got[0]); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatTimestamp(t *testing.T) {
	cet := time.FixedZone("CET", 3600)

	tests := []struct {
		name string
		ts   time.Time
		loc  *time.Location
		want string
	}{
		{name: "zero", ts: time.Time{}, loc: time.UTC, want: ""},
		{name: "utc", ts: time.Date(2024, 1, 7, 18, 50, 9, 0, time.UTC), loc: time.UTC, want: "2024-01-07T18:50:09"},
		{name: "zero offset zone", ts: time.Date(2024, 1, 7, 18, 50, 9, 0, time.FixedZone("GMT", 0)), loc: time.UTC, want: "2024-01-07T18:50:09"},
		{name: "converted to utc", ts: time.Date(2024, 1, 7, 18, 50, 9, 500000000, cet), loc: time.UTC, want: "2024-01-07T17:50:09.5"},
		{name: "same zone", ts: time.Date(2024, 1, 7, 18, 50, 9, 500000000, cet), loc: cet, want: "2024-01-07T18:50:09.5"},
		{name: "utc shown in zone", ts: time.Date(2024, 1, 7, 17, 50, 9, 0, time.UTC), loc: cet, want: "2024-01-07T18:50:09"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTimestamp(tt.ts, tt.loc))
		})
	}
}

func TestNaiveTimestampsUseLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	// 18:45 in Tokyo.
	clock := func() time.Time { return time.Date(2024, 1, 7, 9, 45, 0, 0, time.UTC) }

	fs := afero.NewMemMapFs()
	older := `<testsuites><testsuite name="pytest" time="1" timestamp="2024-01-07T18:40:00">
<testcase classname="t" name="test_x" time="1"><failure message="boom"/></testcase>
</testsuite></testsuites>`
	undated := `<testsuites><testsuite name="pytest" time="1">
<testcase classname="t" name="test_x" time="1"/>
</testsuite></testsuites>`
	require.NoError(t, afero.WriteFile(fs, "a.xml", []byte(older), 0o644))
	require.NoError(t, afero.WriteFile(fs, "b.xml", []byte(undated), 0o644))

	adapter := New(fs, WithClock(clock), WithLocation(tokyo))

	var suites []model.TestSuite
	for _, path := range []string{"a.xml", "b.xml"} {
		parsed, err := adapter.Parse(path)
		require.NoError(t, err)
		suites = append(suites, parsed...)
	}

	merged := merge.New(nil).Suites(suites)
	assert.Equal(t, 0, merged.Failures, "the undated suite is newer and wins")

	require.NoError(t, adapter.Write("merged.xml", merged))
	data, err := afero.ReadFile(fs, "merged.xml")
	require.NoError(t, err)
	assert.Contains(t, string(data), `timestamp="2024-01-07T18:45:00"`)

	written, err := adapter.Parse("merged.xml")
	require.NoError(t, err)
	assert.True(t, clock().Equal(written[0].Timestamp), "got %s", written[0].Timestamp)
}

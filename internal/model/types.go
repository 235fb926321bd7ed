// Package model defines shared data types for onefile.
package model

import "time"

// Format identifies an input/output report format.
type Format string

const (
	FormatJUnit Format = "junit"
	FormatHTML  Format = "html"
)

// Message is the payload of an error or failure element.
// An empty field is absent and is never rendered.
type Message struct {
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Skip is the payload of a skipped element.
type Skip struct {
	Type    string `json:"type,omitempty"`
	Message string `json:"message,omitempty"`
	Text    string `json:"text,omitempty"`
}

// CaseKey identifies a JUnit test case across suites.
type CaseKey struct {
	Classname string
	Name      string
}

func (k CaseKey) String() string {
	if k.Classname == "" {
		return k.Name
	}
	return k.Classname + "::" + k.Name
}

// TestCase is a single JUnit test case.
type TestCase struct {
	Classname string   `json:"classname"`
	Name      string   `json:"name"`
	Time      float64  `json:"time"`
	Error     *Message `json:"error,omitempty"`
	Failure   *Message `json:"failure,omitempty"`
	Skipped   *Skip    `json:"skipped,omitempty"`
}

// Key returns the merge identity of the test case.
func (tc TestCase) Key() CaseKey {
	return CaseKey{Classname: tc.Classname, Name: tc.Name}
}

// Outcomes returns every category the test case is counted under.
// A case without error, failure or skipped payload is passed.
func (tc TestCase) Outcomes() OutcomeSet {
	var set OutcomeSet
	if tc.Error != nil {
		set = set.With(OutcomeError)
	}
	if tc.Failure != nil {
		set = set.With(OutcomeFailed)
	}
	if tc.Skipped != nil {
		set = set.With(OutcomeSkipped)
	}
	if set.Empty() {
		set = set.With(OutcomePassed)
	}
	return set
}

// TestSuite is one JUnit <testsuite> element.
// Counters are recomputed by the merge engine and never trusted from input.
type TestSuite struct {
	Name      string     `json:"name"`
	Hostname  string     `json:"hostname"`
	Errors    int        `json:"errors"`
	Failures  int        `json:"failures"`
	Skipped   int        `json:"skipped"`
	Tests     int        `json:"tests"`
	Time      float64    `json:"time"`
	Timestamp time.Time  `json:"timestamp"`
	TestCases []TestCase `json:"testCases"`
}

// Result is a single row of a pytest-html report.
type Result struct {
	Test     string  `json:"test"`
	Outcome  Outcome `json:"outcome"`
	Duration float64 `json:"duration"`
	Links    string  `json:"links,omitempty"`
	Log      string  `json:"log,omitempty"`
}

// Key returns the merge identity of the result.
func (r Result) Key() string {
	return r.Test
}

// Outcomes returns the single category the result is counted under.
func (r Result) Outcomes() OutcomeSet {
	return SetOf(r.Outcome)
}

// Run is the summary and result table of one pytest-html report.
type Run struct {
	Title     string    `json:"title"`
	Generator string    `json:"generator"`
	Duration  float64   `json:"duration"`
	Timestamp time.Time `json:"timestamp"`
	Tests     int       `json:"tests"`
	Passed    int       `json:"passed"`
	Failed    int       `json:"failed"`
	Errors    int       `json:"errors"`
	Skipped   int       `json:"skipped"`
	XFailed   int       `json:"xfailed"`
	XPassed   int       `json:"xpassed"`
	Reruns    int       `json:"reruns"`
	Results   []Result  `json:"results"`
}

// Count returns the run counter for an outcome.
func (r Run) Count(o Outcome) int {
	switch o {
	case OutcomePassed:
		return r.Passed
	case OutcomeFailed:
		return r.Failed
	case OutcomeError:
		return r.Errors
	case OutcomeSkipped:
		return r.Skipped
	case OutcomeXFailed:
		return r.XFailed
	case OutcomeXPassed:
		return r.XPassed
	case OutcomeRerun:
		return r.Reruns
	default:
		return 0
	}
}

// Adapter reads collections of one format and writes the merged collection back.
type Adapter[C any] interface {
	// Parse reads every collection stored in the file at path.
	Parse(path string) ([]C, error)

	// Write serializes the merged collection to path.
	Write(path string, merged C) error

	// DefaultOutput returns the default output file name.
	DefaultOutput() string
}

// ChangeKind classifies an outcome replaced by a fresher source.
type ChangeKind string

const (
	ChangeRecovered ChangeKind = "recovered"
	ChangeRegressed ChangeKind = "regressed"
	ChangeChanged   ChangeKind = "changed"
)

// FailureSignature represents a categorized failure type.
type FailureSignature string

const (
	SignatureTimeout    FailureSignature = "TIMEOUT"
	SignatureConnection FailureSignature = "CONNECTION"
	SignatureAssertion  FailureSignature = "ASSERTION"
	SignatureImport     FailureSignature = "IMPORT"
	SignatureFixture    FailureSignature = "FIXTURE"
	SignatureUnknown    FailureSignature = "UNKNOWN"
)

// Change records a test whose outcome was superseded during the merge.
type Change struct {
	Test   string     `json:"test"`
	From   string     `json:"from"`
	To     string     `json:"to"`
	Source int        `json:"source"` // index into Summary.Sources
	Kind   ChangeKind `json:"kind"`
}

// Failure is a failing or erroring test of the merged report.
type Failure struct {
	Test      string           `json:"test"`
	Outcome   string           `json:"outcome"`
	Excerpt   string           `json:"excerpt"`
	Signature FailureSignature `json:"signature"`
}

// Summary is the top-level structure for the merge reports.
type Summary struct {
	Format           Format         `json:"format"`
	Name             string         `json:"name"`
	Sources          []string       `json:"sources"`
	Output           string         `json:"output"`
	Tests            int            `json:"tests"`
	Passed           int            `json:"passed"`
	Failed           int            `json:"failed"`
	Errors           int            `json:"errors"`
	Skipped          int            `json:"skipped"`
	XFailed          int            `json:"xfailed,omitempty"`
	XPassed          int            `json:"xpassed,omitempty"`
	Reruns           int            `json:"reruns,omitempty"`
	Time             float64        `json:"time"`
	Timestamp        time.Time      `json:"timestamp"`
	Changes          []Change       `json:"changes"`
	Failures         []Failure      `json:"failures"`
	SignatureSummary map[string]int `json:"signatureSummary"`
}

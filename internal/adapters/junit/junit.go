// Package junit implements the onefile adapter for JUnit XML reports.
package junit

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/zytedata/onefile/internal/logging"
	"github.com/zytedata/onefile/internal/model"
)

const (
	// DefaultOutput is the file name of the merged report.
	DefaultOutput = "junit.xml"

	// TimestampLayout is used when writing the merged suite timestamp.
	TimestampLayout = "2006-01-02T15:04:05.999999"
)

// timestampLayouts are tried in order when parsing a suite timestamp.
// Fractional seconds are optional in every layout.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// JUnitTestSuites represents the root element of JUnit XML.
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite represents a test suite in JUnit XML.
type JUnitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Errors    string          `xml:"errors,attr"`
	Failures  string          `xml:"failures,attr"`
	Skipped   string          `xml:"skipped,attr"`
	Tests     string          `xml:"tests,attr"`
	Time      string          `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	Hostname  string          `xml:"hostname,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase represents a single test case in JUnit XML.
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Classname string        `xml:"classname,attr"`
	Name      string        `xml:"name,attr"`
	Time      string        `xml:"time,attr"`
	Error     *JUnitMessage `xml:"error,omitempty"`
	Failure   *JUnitMessage `xml:"failure,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
}

// JUnitMessage represents an error or failure element.
type JUnitMessage struct {
	Message string `xml:"message,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitSkipped represents a skipped element.
type JUnitSkipped struct {
	Type    string `xml:"type,attr,omitempty"`
	Message string `xml:"message,attr,omitempty"`
	Content string `xml:",chardata"`
}

// Adapter implements model.Adapter for JUnit XML.
type Adapter struct {
	fs  afero.Fs
	log logrus.FieldLogger
	now func() time.Time
	loc *time.Location
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Adapter) {
		a.log = log
	}
}

// WithClock sets the clock used for suites without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
	}
}

// WithLocation sets the zone of timestamps written without one. pytest writes
// suite timestamps in the local time of the machine that ran the tests.
func WithLocation(loc *time.Location) Option {
	return func(a *Adapter) {
		a.loc = loc
	}
}

// New creates a new JUnit adapter reading and writing through fs.
func New(fs afero.Fs, opts ...Option) *Adapter {
	a := &Adapter{
		fs:  fs,
		log: logging.Discard(),
		now: time.Now,
		loc: time.Local,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.loc == nil {
		a.loc = time.Local
	}
	return a
}

// DefaultOutput returns the merged report file name.
func (a *Adapter) DefaultOutput() string {
	return DefaultOutput
}

// Parse reads the JUnit XML file at path. Every <testsuite> element becomes one suite,
// whether the root is <testsuites> or a single <testsuite>.
func (a *Adapter) Parse(path string) ([]model.TestSuite, error) {
	a.log.WithField("file", path).Info("Parsing JUnit XML")

	f, err := a.fs.Open(path)
	if err != nil {
		return nil, &ParseError{
			File:    path,
			Message: fmt.Sprintf("failed to open file: %v", err),
			Action:  "Check that the path exists and is readable.",
		}
	}
	defer f.Close()

	raw, err := decode(f)
	if err != nil {
		return nil, &ParseError{
			File:    path,
			Message: fmt.Sprintf("invalid XML: %v", err),
			Action:  "Ensure the file is a JUnit XML report with a <testsuites> or <testsuite> root.",
		}
	}

	suites := make([]model.TestSuite, 0, len(raw))
	for i, rs := range raw {
		suite, err := a.convertSuite(rs)
		if err != nil {
			return nil, &ParseError{
				File:    path,
				Message: fmt.Sprintf("testsuite[%d]: %v", i, err),
				Action:  "Numeric attributes must be numbers and timestamps ISO-8601.",
			}
		}
		suites = append(suites, suite)
	}

	return suites, nil
}

// decode reads the document root and returns its suites.
func decode(r io.Reader) ([]JUnitTestSuite, error) {
	dec := xml.NewDecoder(r)

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("no root element")
			}
			return nil, err
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "testsuites":
			var doc JUnitTestSuites
			if err := dec.DecodeElement(&doc, &start); err != nil {
				return nil, err
			}
			return doc.TestSuites, nil
		case "testsuite":
			var suite JUnitTestSuite
			if err := dec.DecodeElement(&suite, &start); err != nil {
				return nil, err
			}
			return []JUnitTestSuite{suite}, nil
		default:
			return nil, fmt.Errorf("unexpected root element <%s>", start.Name.Local)
		}
	}
}

func (a *Adapter) convertSuite(rs JUnitTestSuite) (model.TestSuite, error) {
	var (
		suite = model.TestSuite{
			Name:     rs.Name,
			Hostname: rs.Hostname,
		}
		err error
	)

	counters := []struct {
		name  string
		value string
		dst   *int
	}{
		{"errors", rs.Errors, &suite.Errors},
		{"failures", rs.Failures, &suite.Failures},
		{"skipped", rs.Skipped, &suite.Skipped},
		{"tests", rs.Tests, &suite.Tests},
	}
	for _, c := range counters {
		if *c.dst, err = parseInt(c.value); err != nil {
			return model.TestSuite{}, fmt.Errorf("attribute %s: %w", c.name, err)
		}
	}

	if suite.Time, err = parseFloat(rs.Time); err != nil {
		return model.TestSuite{}, fmt.Errorf("attribute time: %w", err)
	}

	if strings.TrimSpace(rs.Timestamp) == "" {
		suite.Timestamp = a.now()
	} else if suite.Timestamp, err = ParseTimestamp(rs.Timestamp, a.loc); err != nil {
		return model.TestSuite{}, err
	}

	suite.TestCases = make([]model.TestCase, 0, len(rs.TestCases))
	for j, rc := range rs.TestCases {
		tc := model.TestCase{
			Classname: rc.Classname,
			Name:      rc.Name,
		}
		if tc.Time, err = parseFloat(rc.Time); err != nil {
			return model.TestSuite{}, fmt.Errorf("testcase[%d] attribute time: %w", j, err)
		}
		if rc.Error != nil {
			tc.Error = &model.Message{Message: rc.Error.Message, Text: text(rc.Error.Content)}
		}
		if rc.Failure != nil {
			tc.Failure = &model.Message{Message: rc.Failure.Message, Text: text(rc.Failure.Content)}
		}
		if rc.Skipped != nil {
			tc.Skipped = &model.Skip{Type: rc.Skipped.Type, Message: rc.Skipped.Message, Text: text(rc.Skipped.Content)}
		}
		suite.TestCases = append(suite.TestCases, tc)
	}

	return suite, nil
}

// ParseTimestamp parses an ISO-8601 suite timestamp. Timestamps without a zone are in loc.
func ParseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", value)
}

// FormatTimestamp renders a suite timestamp as wall time in loc, without a zone,
// the way pytest writes it. ParseTimestamp with the same loc reads back the same instant.
func FormatTimestamp(ts time.Time, loc *time.Location) string {
	if ts.IsZero() {
		return ""
	}
	return ts.In(loc).Format(TimestampLayout)
}

// Write serializes the merged suite as a pretty-printed JUnit XML document
// holding exactly one <testsuite>.
func (a *Adapter) Write(path string, suite model.TestSuite) (err error) {
	a.log.WithField("file", path).Info("Writing merged JUnit XML")

	if dir := filepath.Dir(path); dir != "." {
		if err := a.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	f, err := a.fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(f))

	if err := encode(f, suite, a.loc); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// Encode writes the XML document for suite to w, with the timestamp in UTC.
func Encode(w io.Writer, suite model.TestSuite) error {
	return encode(w, suite, time.UTC)
}

func encode(w io.Writer, suite model.TestSuite, loc *time.Location) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(toXML(suite, loc)); err != nil {
		return fmt.Errorf("failed to encode XML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}

	_, err := io.WriteString(w, "\n")
	return err
}

func toXML(suite model.TestSuite, loc *time.Location) JUnitTestSuites {
	out := JUnitTestSuite{
		Name:      suite.Name,
		Errors:    strconv.Itoa(suite.Errors),
		Failures:  strconv.Itoa(suite.Failures),
		Skipped:   strconv.Itoa(suite.Skipped),
		Tests:     strconv.Itoa(suite.Tests),
		Time:      formatFloat(suite.Time),
		Timestamp: FormatTimestamp(suite.Timestamp, loc),
		Hostname:  suite.Hostname,
		TestCases: make([]JUnitTestCase, 0, len(suite.TestCases)),
	}

	for _, tc := range suite.TestCases {
		xc := JUnitTestCase{
			Classname: tc.Classname,
			Name:      tc.Name,
			Time:      formatFloat(tc.Time),
		}
		if tc.Error != nil {
			xc.Error = &JUnitMessage{Message: tc.Error.Message, Content: tc.Error.Text}
		}
		if tc.Failure != nil {
			xc.Failure = &JUnitMessage{Message: tc.Failure.Message, Content: tc.Failure.Text}
		}
		if tc.Skipped != nil {
			xc.Skipped = &JUnitSkipped{Type: tc.Skipped.Type, Message: tc.Skipped.Message, Content: tc.Skipped.Text}
		}
		out.TestCases = append(out.TestCases, xc)
	}

	return JUnitTestSuites{TestSuites: []JUnitTestSuite{out}}
}

func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// text treats whitespace-only element content as absent.
func text(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}

// ParseError provides actionable error information for parsing failures.
type ParseError struct {
	File    string
	Message string
	Action  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %s. %s", e.File, e.Message, e.Action)
}

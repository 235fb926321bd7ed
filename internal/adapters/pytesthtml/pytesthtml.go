// Package pytesthtml implements the onefile adapter for pytest-html reports.
package pytesthtml

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/zytedata/onefile/internal/logging"
	"github.com/zytedata/onefile/internal/model"
)

const (
	// DefaultOutput is the file name of the merged report.
	DefaultOutput = "report.html"

	// GeneratedLayout is the timestamp format of the "Report generated on" line.
	GeneratedLayout = "02-Jan-2006 at 15:04:05"

	rowClass   = "results-table-row"
	emptyClass = "empty"
)

var (
	generatedPattern = regexp.MustCompile(`Report generated on (\d{2}-[A-Za-z]{3}-\d{4} at \d{2}:\d{2}:\d{2})(?:\s+by\s+(.+))?`)
	ranPattern       = regexp.MustCompile(`(\d+)\s+tests?\s+ran\s+in\s+([0-9]+(?:\.[0-9]+)?)\s+seconds`)
)

// Adapter implements model.Adapter for pytest-html reports.
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

// WithClock sets the clock used for reports without a generation date.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		a.now = now
	}
}

// WithLocation sets the zone of the generation date, which pytest-html writes
// in the local time of the machine that ran the tests.
func WithLocation(loc *time.Location) Option {
	return func(a *Adapter) {
		a.loc = loc
	}
}

// New creates a new pytest-html adapter reading and writing through fs.
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

// Parse reads the pytest-html report at path. A report always holds exactly one run.
func (a *Adapter) Parse(path string) ([]model.Run, error) {
	a.log.WithField("file", path).Info("Parsing pytest-html report")

	f, err := a.fs.Open(path)
	if err != nil {
		return nil, &ParseError{
			File:    path,
			Message: fmt.Sprintf("failed to open file: %v", err),
			Action:  "Check that the path exists and is readable.",
		}
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, &ParseError{
			File:    path,
			Message: fmt.Sprintf("invalid HTML: %v", err),
			Action:  "Ensure the file is an HTML report written by pytest-html.",
		}
	}

	run, err := a.extract(doc)
	if err != nil {
		return nil, &ParseError{
			File:    path,
			Message: err.Error(),
			Action:  "Ensure the file is a self-contained pytest-html report with a summary and a results table.",
		}
	}

	a.log.WithFields(logrus.Fields{
		"file":    path,
		"results": len(run.Results),
	}).Debug("Parsed pytest-html report")

	return []model.Run{run}, nil
}

// extract walks the document once, collecting the summary and every result row.
func (a *Adapter) extract(doc *html.Node) (model.Run, error) {
	var (
		run       model.Run
		title     string
		docTitle  string
		summary   bool
		walkErr   error
		generated time.Time
	)

	walk(doc, func(n *html.Node) bool {
		if walkErr != nil || n.Type != html.ElementNode {
			return walkErr == nil
		}

		switch n.DataAtom {
		case atom.Title:
			docTitle = collapse(textContent(n))
		case atom.H1:
			if title == "" {
				title = collapse(textContent(n))
			}
		case atom.P:
			line := collapse(textContent(n))
			if m := generatedPattern.FindStringSubmatch(line); m != nil {
				ts, err := time.ParseInLocation(GeneratedLayout, m[1], a.loc)
				if err != nil {
					walkErr = fmt.Errorf("unparsable generation date %q: %w", m[1], err)
					return false
				}
				generated = ts
				run.Generator = m[2]
			}
			if m := ranPattern.FindStringSubmatch(line); m != nil {
				summary = true
				if run.Tests, walkErr = strconv.Atoi(m[1]); walkErr != nil {
					walkErr = fmt.Errorf("test count %q: %w", m[1], walkErr)
					return false
				}
				if run.Duration, walkErr = strconv.ParseFloat(m[2], 64); walkErr != nil {
					return false
				}
			}
		case atom.Span:
			if o, ok := summaryOutcome(n); ok {
				count, err := leadingInt(textContent(n))
				if err != nil {
					walkErr = fmt.Errorf("summary counter %q: %w", strings.ToLower(o.String()), err)
					return false
				}
				setCount(&run, o, count)
			}
		case atom.Tbody:
			if hasClass(n, rowClass) {
				result, err := extractResult(n)
				if err != nil {
					walkErr = fmt.Errorf("result row %d: %w", len(run.Results), err)
					return false
				}
				run.Results = append(run.Results, result)
				return false
			}
		}
		return true
	})
	if walkErr != nil {
		return model.Run{}, walkErr
	}

	if !summary {
		return model.Run{}, fmt.Errorf("missing run summary (\"N tests ran in X seconds\")")
	}

	run.Title = title
	if run.Title == "" {
		run.Title = docTitle
	}

	run.Timestamp = generated
	if run.Timestamp.IsZero() {
		run.Timestamp = a.now()
	}

	return run, nil
}

func extractResult(tbody *html.Node) (model.Result, error) {
	var (
		result   model.Result
		label    string
		duration string
	)

	walk(tbody, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch {
		case n.DataAtom == atom.Td && hasClass(n, "col-result"):
			label = collapse(textContent(n))
			return false
		case n.DataAtom == atom.Td && hasClass(n, "col-name"):
			result.Test = strings.TrimSpace(textContent(n))
			return false
		case n.DataAtom == atom.Td && hasClass(n, "col-duration"):
			duration = strings.TrimSpace(textContent(n))
			return false
		case n.DataAtom == atom.Td && hasClass(n, "col-links"):
			result.Links = innerHTML(n)
			return false
		case n.DataAtom == atom.Div && hasClass(n, "log"):
			if !hasClass(n, emptyClass) {
				result.Log = textContent(n)
			}
			return false
		}
		return true
	})

	if result.Test == "" {
		return model.Result{}, fmt.Errorf("missing test name")
	}

	outcome, err := model.ParseOutcome(label)
	if err != nil {
		return model.Result{}, fmt.Errorf("%s: %w", result.Test, err)
	}
	result.Outcome = outcome

	if duration != "" {
		if result.Duration, err = strconv.ParseFloat(duration, 64); err != nil {
			return model.Result{}, fmt.Errorf("%s: invalid duration %q", result.Test, duration)
		}
	}

	return result, nil
}

// summaryOutcome maps a summary counter span to its outcome by CSS class.
func summaryOutcome(n *html.Node) (model.Outcome, bool) {
	for _, o := range model.Outcomes() {
		if hasClass(n, outcomeClass(o)) {
			return o, true
		}
	}
	return 0, false
}

// outcomeClass is the CSS class pytest-html uses for an outcome.
func outcomeClass(o model.Outcome) string {
	return strings.ToLower(o.String())
}

func setCount(run *model.Run, o model.Outcome, count int) {
	switch o {
	case model.OutcomePassed:
		run.Passed = count
	case model.OutcomeFailed:
		run.Failed = count
	case model.OutcomeError:
		run.Errors = count
	case model.OutcomeSkipped:
		run.Skipped = count
	case model.OutcomeXFailed:
		run.XFailed = count
	case model.OutcomeXPassed:
		run.XPassed = count
	case model.OutcomeRerun:
		run.Reruns = count
	}
}

// walk visits n and its descendants depth first. Returning false from fn
// skips the children of the visited node.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// textContent returns the text below n. <br> elements become newlines.
func textContent(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(c *html.Node) bool {
		switch {
		case c.Type == html.TextNode:
			sb.WriteString(c.Data)
		case c.Type == html.ElementNode && c.DataAtom == atom.Br:
			sb.WriteByte('\n')
		}
		return true
	})
	return sb.String()
}

func innerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return ""
		}
	}
	return strings.TrimSpace(buf.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func leadingInt(s string) (int, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty counter")
	}
	return strconv.Atoi(fields[0])
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

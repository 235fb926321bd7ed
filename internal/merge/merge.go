// Package merge folds parsed test reports into one canonical report.
//
// Sources are processed strictly in the given order. A source whose timestamp is
// strictly later than every source before it is authoritative: its outcome and
// duration replace those of any test already seen. Tests first seen in any source
// are appended in first-seen order. Counters always match the outcomes of the
// merged items, and the total is only ever incremented on first sight of a key.
package merge

import (
	"github.com/sirupsen/logrus"

	"github.com/zytedata/onefile/internal/logging"
	"github.com/zytedata/onefile/internal/model"
)

// Transition describes a test whose outcome categories were replaced by an
// authoritative source.
type Transition struct {
	Test   string
	From   model.OutcomeSet
	To     model.OutcomeSet
	Source int // index of the authoritative collection
}

// Merger merges collections of the same format. It holds no state between calls.
type Merger struct {
	log          logrus.FieldLogger
	onTransition func(Transition)
}

// Option configures a Merger.
type Option func(*Merger)

// WithTransitionHook registers fn to be called for every replaced outcome.
func WithTransitionHook(fn func(Transition)) Option {
	return func(m *Merger) {
		m.onTransition = fn
	}
}

// New creates a Merger. A nil logger discards all output.
func New(log logrus.FieldLogger, opts ...Option) *Merger {
	if log == nil {
		log = logging.Discard()
	}

	m := &Merger{log: log}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Suites merges JUnit suites into a single suite.
// The inputs are not modified; an empty input yields the zero suite.
func (m *Merger) Suites(suites []model.TestSuite) model.TestSuite {
	m.log.WithField("suites", len(suites)).Info("Merging JUnit test suites")

	var merged model.TestSuite
	l := newLedger[model.CaseKey, model.TestCase](m)

	for i, suite := range suites {
		merged.Name = suite.Name
		merged.Hostname = suite.Hostname

		authoritative := l.advance(i, suite.Timestamp, suite.Time)
		l.fold(suite.TestCases, authoritative)
	}

	merged.Time = l.elapsed
	merged.Timestamp = l.timestamp
	merged.TestCases = l.items
	merged.Tests = l.total
	merged.Errors = l.tally.Get(model.OutcomeError)
	merged.Failures = l.tally.Get(model.OutcomeFailed)
	merged.Skipped = l.tally.Get(model.OutcomeSkipped)

	return merged
}

// Runs merges pytest-html runs into a single run.
// The inputs are not modified; an empty input yields the zero run.
func (m *Merger) Runs(runs []model.Run) model.Run {
	m.log.WithField("runs", len(runs)).Info("Merging HTML test runs")

	var merged model.Run
	l := newLedger[string, model.Result](m)

	for i, run := range runs {
		merged.Title = run.Title
		merged.Generator = run.Generator

		authoritative := l.advance(i, run.Timestamp, run.Duration)
		l.fold(run.Results, authoritative)
	}

	merged.Duration = l.elapsed
	merged.Timestamp = l.timestamp
	merged.Results = l.items
	merged.Tests = l.total
	merged.Passed = l.tally.Get(model.OutcomePassed)
	merged.Failed = l.tally.Get(model.OutcomeFailed)
	merged.Errors = l.tally.Get(model.OutcomeError)
	merged.Skipped = l.tally.Get(model.OutcomeSkipped)
	merged.XFailed = l.tally.Get(model.OutcomeXFailed)
	merged.XPassed = l.tally.Get(model.OutcomeXPassed)
	merged.Reruns = l.tally.Get(model.OutcomeRerun)

	return merged
}

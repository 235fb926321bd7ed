// Package classify labels the failures and outcome changes of a merged report.
package classify

import (
	"regexp"
	"sort"
	"strings"

	"github.com/zytedata/onefile/internal/merge"
	"github.com/zytedata/onefile/internal/model"
)

// maxExcerptLen is the maximum length for failure excerpts.
const maxExcerptLen = 200

// signaturePatterns maps failure signatures to their detection patterns.
// Patterns are checked in order; first match wins.
var signaturePatterns = []struct {
	signature model.FailureSignature
	patterns  []*regexp.Regexp
}{
	{
		signature: model.SignatureTimeout,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)timeout`),
			regexp.MustCompile(`(?i)timed?\s*out`),
			regexp.MustCompile(`(?i)exceeded\s*time`),
		},
	},
	{
		signature: model.SignatureConnection,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)connection\s*(error|refused|reset|aborted)`),
			regexp.MustCompile(`ECONNREFUSED`),
			regexp.MustCompile(`(?i)max\s*retries\s*exceeded`),
			regexp.MustCompile(`(?i)name\s*or\s*service\s*not\s*known`),
		},
	},
	{
		signature: model.SignatureImport,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\bImportError\b`),
			regexp.MustCompile(`\bModuleNotFoundError\b`),
			regexp.MustCompile(`(?i)no\s*module\s*named`),
		},
	},
	{
		signature: model.SignatureFixture,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)fixture\s*'[^']*'\s*not\s*found`),
			regexp.MustCompile(`(?i)error\s*at\s*(setup|teardown)`),
			regexp.MustCompile(`(?i)failed\s*on\s*(setup|teardown)`),
		},
	},
	{
		signature: model.SignatureAssertion,
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\bAssertionError\b`),
			regexp.MustCompile(`(?i)\bassert`),
			regexp.MustCompile(`(?i)\bexpected\b`),
		},
	},
}

// DetectSignature analyzes a failure message and returns the appropriate signature.
// Patterns are checked in a deterministic order; first match wins.
// Returns SignatureUnknown if no patterns match.
func DetectSignature(failureMessage string) model.FailureSignature {
	if failureMessage == "" {
		return model.SignatureUnknown
	}

	for _, sp := range signaturePatterns {
		for _, pattern := range sp.patterns {
			if pattern.MatchString(failureMessage) {
				return sp.signature
			}
		}
	}

	return model.SignatureUnknown
}

// truncateExcerpt truncates a string to maxExcerptLen runes, adding ellipsis if truncated.
func truncateExcerpt(s string) string {
	// Normalize whitespace
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= maxExcerptLen {
		return s
	}
	return string(runes[:maxExcerptLen-3]) + "..."
}

// SuiteFailures returns one Failure per errored or failed case of a merged suite.
func SuiteFailures(suite model.TestSuite) []model.Failure {
	failures := make([]model.Failure, 0)
	for _, tc := range suite.TestCases {
		payload := tc.Error
		if payload == nil {
			payload = tc.Failure
		}
		if payload == nil {
			continue
		}

		message := strings.TrimSpace(payload.Message + "\n" + payload.Text)
		failures = append(failures, model.Failure{
			Test:      tc.Key().String(),
			Outcome:   tc.Outcomes().String(),
			Excerpt:   truncateExcerpt(message),
			Signature: DetectSignature(message),
		})
	}

	sortFailures(failures)
	return failures
}

// RunFailures returns one Failure per errored or failed result of a merged run.
func RunFailures(run model.Run) []model.Failure {
	failures := make([]model.Failure, 0)
	for _, r := range run.Results {
		if r.Outcome != model.OutcomeFailed && r.Outcome != model.OutcomeError {
			continue
		}

		failures = append(failures, model.Failure{
			Test:      r.Test,
			Outcome:   r.Outcome.String(),
			Excerpt:   truncateExcerpt(r.Log),
			Signature: DetectSignature(r.Log),
		})
	}

	sortFailures(failures)
	return failures
}

// sortFailures orders failures by signature, then by test name.
// UNKNOWN sorts last.
func sortFailures(failures []model.Failure) {
	sort.SliceStable(failures, func(i, j int) bool {
		a, b := failures[i], failures[j]
		if a.Signature != b.Signature {
			if a.Signature == model.SignatureUnknown || b.Signature == model.SignatureUnknown {
				return b.Signature == model.SignatureUnknown
			}
			return a.Signature < b.Signature
		}
		return a.Test < b.Test
	})
}

// SignatureSummary counts occurrences of each failure signature.
// Returns a map suitable for the report.
func SignatureSummary(failures []model.Failure) map[string]int {
	summary := make(map[string]int)
	for _, f := range failures {
		summary[string(f.Signature)]++
	}
	return summary
}

// TopFailures returns up to n failures with a recognised signature first.
func TopFailures(failures []model.Failure, n int) []model.Failure {
	if len(failures) <= n {
		return failures
	}
	return failures[:n]
}

// Changes converts the merge transitions into report changes.
// The result is sorted by source, then by test.
func Changes(transitions []merge.Transition) []model.Change {
	changes := make([]model.Change, 0, len(transitions))
	for _, tr := range transitions {
		changes = append(changes, model.Change{
			Test:   tr.Test,
			From:   tr.From.String(),
			To:     tr.To.String(),
			Source: tr.Source,
			Kind:   kind(tr.From, tr.To),
		})
	}

	sort.SliceStable(changes, func(i, j int) bool {
		if changes[i].Source != changes[j].Source {
			return changes[i].Source < changes[j].Source
		}
		return changes[i].Test < changes[j].Test
	})

	return changes
}

// kind determines the change kind from the outcome sets before and after.
func kind(from, to model.OutcomeSet) model.ChangeKind {
	switch {
	case !from.Passing() && to.Passing():
		return model.ChangeRecovered
	case from.Passing() && !to.Passing():
		return model.ChangeRegressed
	default:
		return model.ChangeChanged
	}
}

// FilterChanges returns the changes of the given kind.
// The returned slice maintains the original sort order.
func FilterChanges(changes []model.Change, k model.ChangeKind) []model.Change {
	result := make([]model.Change, 0)
	for _, c := range changes {
		if c.Kind == k {
			result = append(result, c)
		}
	}
	return result
}

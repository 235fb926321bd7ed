package report

import (
	"github.com/zytedata/onefile/internal/classify"
	"github.com/zytedata/onefile/internal/model"
)

// FromSuite builds the summary of a merged JUnit suite.
func FromSuite(suite model.TestSuite, sources []string, output string, changes []model.Change) *model.Summary {
	passed := 0
	for _, tc := range suite.TestCases {
		if tc.Outcomes() == model.SetOf(model.OutcomePassed) {
			passed++
		}
	}

	failures := classify.SuiteFailures(suite)

	return &model.Summary{
		Format:           model.FormatJUnit,
		Name:             suite.Name,
		Sources:          nonNil(sources),
		Output:           output,
		Tests:            suite.Tests,
		Passed:           passed,
		Failed:           suite.Failures,
		Errors:           suite.Errors,
		Skipped:          suite.Skipped,
		Time:             suite.Time,
		Timestamp:        suite.Timestamp,
		Changes:          nonNil(changes),
		Failures:         failures,
		SignatureSummary: classify.SignatureSummary(failures),
	}
}

// FromRun builds the summary of a merged pytest-html run.
func FromRun(run model.Run, sources []string, output string, changes []model.Change) *model.Summary {
	failures := classify.RunFailures(run)

	return &model.Summary{
		Format:           model.FormatHTML,
		Name:             run.Title,
		Sources:          nonNil(sources),
		Output:           output,
		Tests:            run.Tests,
		Passed:           run.Passed,
		Failed:           run.Failed,
		Errors:           run.Errors,
		Skipped:          run.Skipped,
		XFailed:          run.XFailed,
		XPassed:          run.XPassed,
		Reruns:           run.Reruns,
		Time:             run.Duration,
		Timestamp:        run.Timestamp,
		Changes:          nonNil(changes),
		Failures:         failures,
		SignatureSummary: classify.SignatureSummary(failures),
	}
}

// nonNil keeps JSON output stable by turning nil slices into empty ones.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

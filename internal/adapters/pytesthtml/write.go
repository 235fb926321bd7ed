package pytesthtml

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Masterminds/sprig/v3"
	"go.uber.org/multierr"

	"github.com/zytedata/onefile/internal/model"
)

//go:embed templates/report.html.tmpl
var reportTemplate string

var reportTmpl = template.Must(template.New("report").Funcs(funcMap()).Parse(reportTemplate))

// counterLabels are the words pytest-html prints after each summary counter.
var counterLabels = [model.NumOutcomes]string{
	model.OutcomePassed:  "passed",
	model.OutcomeSkipped: "skipped",
	model.OutcomeFailed:  "failed",
	model.OutcomeError:   "errors",
	model.OutcomeXFailed: "expected failures",
	model.OutcomeXPassed: "unexpected passes",
	model.OutcomeRerun:   "rerun",
}

// summaryOrder is the order of the summary counters in a pytest-html report.
var summaryOrder = []model.Outcome{
	model.OutcomePassed,
	model.OutcomeSkipped,
	model.OutcomeFailed,
	model.OutcomeError,
	model.OutcomeXFailed,
	model.OutcomeXPassed,
	model.OutcomeRerun,
}

// summaryView is the data the report template renders.
type summaryView struct {
	Title     string
	Generator string
	Stamped   bool
	Generated time.Time
	Tests     int
	Duration  float64
	Counters  []counterView
	Rows      []rowView
}

type counterView struct {
	Class string
	Count int
	Label string
}

type rowView struct {
	Result   string
	Test     string
	Duration float64
	Links    template.HTML
	Log      string
}

func funcMap() template.FuncMap {
	funcs := sprig.HtmlFuncMap()
	funcs["seconds"] = formatSeconds
	return funcs
}

// Write renders the merged run as a standalone pytest-html report.
func (a *Adapter) Write(path string, run model.Run) (err error) {
	a.log.WithField("file", path).Info("Writing merged pytest-html report")

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

	if err := render(f, newSummaryView(run, a.loc)); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// Encode writes the HTML document for run to w. The generation date keeps the
// zone of the run timestamp.
func Encode(w io.Writer, run model.Run) error {
	return render(w, newSummaryView(run, run.Timestamp.Location()))
}

func render(w io.Writer, view summaryView) error {
	if err := reportTmpl.Execute(w, view); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

// newSummaryView builds the template data; the generation date is shown in loc.
func newSummaryView(run model.Run, loc *time.Location) summaryView {
	view := summaryView{
		Title:     run.Title,
		Generator: run.Generator,
		Stamped:   !run.Timestamp.IsZero(),
		Generated: run.Timestamp.In(loc),
		Tests:     run.Tests,
		Duration:  run.Duration,
		Counters:  make([]counterView, 0, len(summaryOrder)),
		Rows:      make([]rowView, 0, len(run.Results)),
	}

	for _, o := range summaryOrder {
		view.Counters = append(view.Counters, counterView{
			Class: outcomeClass(o),
			Count: run.Count(o),
			Label: counterLabels[o],
		})
	}

	for _, r := range run.Results {
		view.Rows = append(view.Rows, rowView{
			Result:   r.Outcome.String(),
			Test:     r.Test,
			Duration: r.Duration,
			// Links come from a pytest-html report and are already markup.
			Links: template.HTML(r.Links),
			Log:   r.Log,
		})
	}

	return view
}

func formatSeconds(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Package report renders the summary of a merge for terminals, JSON and Markdown.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"

	"github.com/zytedata/onefile/internal/classify"
	"github.com/zytedata/onefile/internal/model"
)

// TerminalConfig holds configuration for terminal output.
type TerminalConfig struct {
	Writer  io.Writer
	TopN    int  // Number of failures to show (default: 5)
	Verbose bool // List every source and every changed outcome
	NoColor bool
}

// DefaultTerminalConfig returns the default terminal configuration.
func DefaultTerminalConfig(w io.Writer) *TerminalConfig {
	return &TerminalConfig{
		Writer: w,
		TopN:   5,
	}
}

// palette holds the color functions of one rendering.
type palette struct {
	header  func(a ...interface{}) string
	good    func(a ...interface{}) string
	bad     func(a ...interface{}) string
	neutral func(a ...interface{}) string
	name    func(a ...interface{}) string
}

func newPalette(noColor bool) palette {
	sprint := func(attrs ...color.Attribute) func(a ...interface{}) string {
		c := color.New(attrs...)
		if noColor {
			c.DisableColor()
		}
		return c.SprintFunc()
	}

	return palette{
		header:  sprint(color.FgHiWhite, color.Bold),
		good:    sprint(color.FgHiGreen),
		bad:     sprint(color.FgHiRed),
		neutral: sprint(color.FgYellow),
		name:    sprint(color.FgHiCyan),
	}
}

// RenderTerminal writes the terminal summary to the configured writer.
func RenderTerminal(cfg *TerminalConfig, summary *model.Summary) error {
	if cfg.Writer == nil {
		return fmt.Errorf("writer is required")
	}
	if summary == nil {
		return fmt.Errorf("summary is required")
	}

	w := cfg.Writer
	p := newPalette(cfg.NoColor)
	topN := cfg.TopN
	if topN <= 0 {
		topN = 5
	}

	// Header
	fmt.Fprintln(w)
	fmt.Fprintln(w, p.header(fmt.Sprintf("=== Merged %s Report ===", formatLabel(summary.Format))))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Name:      %s\n", p.name(summary.Name))
	fmt.Fprintf(w, "Sources:   %d\n", len(summary.Sources))
	fmt.Fprintf(w, "Timestamp: %s\n", formatTimestamp(summary.Timestamp))
	fmt.Fprintf(w, "Time:      %ss\n", formatSeconds(summary.Time))
	fmt.Fprintln(w)

	if cfg.Verbose {
		for i, src := range summary.Sources {
			fmt.Fprintf(w, "  [%d] %s\n", i, src)
		}
		fmt.Fprintln(w)
	}

	// Counts
	table := newTable(w)
	table.SetHeader([]string{"Outcome", "Count"})
	for _, row := range outcomeRows(summary) {
		table.Append([]string{row.label, p.paint(row.outcome, row.count)})
	}
	table.Render()
	fmt.Fprintln(w)

	// Changed outcomes
	if len(summary.Changes) > 0 {
		fmt.Fprintf(w, "Changed Outcomes (%d): %s recovered, %s regressed\n",
			len(summary.Changes),
			p.good(len(classify.FilterChanges(summary.Changes, model.ChangeRecovered))),
			p.bad(len(classify.FilterChanges(summary.Changes, model.ChangeRegressed))),
		)
		changes := summary.Changes
		if !cfg.Verbose && len(changes) > topN {
			changes = changes[:topN]
		}

		table := newTable(w)
		table.SetHeader([]string{"Test", "From", "To", "Source", "Kind"})
		for _, c := range changes {
			table.Append([]string{c.Test, c.From, c.To, sourceName(summary, c.Source), p.kind(c.Kind)})
		}
		table.Render()
		fmt.Fprintln(w)
	}

	// Failures
	if len(summary.Failures) > 0 {
		fmt.Fprintln(w, "Failures:")
		shown := classify.TopFailures(summary.Failures, topN)
		for i, f := range shown {
			fmt.Fprintf(w, "  %d. %s [%s]\n", i+1, f.Test, p.bad(string(f.Signature)))
			if f.Excerpt != "" {
				fmt.Fprintf(w, "     Excerpt: %s\n", truncateForTerminal(f.Excerpt, 80))
			}
		}
		if rest := len(summary.Failures) - len(shown); rest > 0 {
			fmt.Fprintf(w, "  ... and %d more\n", rest)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, p.good("No failing tests."))
		fmt.Fprintln(w)
	}

	// Signature summary
	if len(summary.SignatureSummary) > 0 {
		fmt.Fprintln(w, "Failure Signatures:")
		// Sort signatures for deterministic output
		for _, sig := range sortedSignatures(summary.SignatureSummary) {
			fmt.Fprintf(w, "  %s: %d\n", sig.Name, sig.Count)
		}
		fmt.Fprintln(w)
	}

	// Output path
	if summary.Output != "" {
		fmt.Fprintf(w, "Output: %s\n", summary.Output)
		fmt.Fprintln(w)
	}

	return nil
}

// newTable returns a borderless, left-aligned table writer.
func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

// paint colors a counter by how its outcome reads in a report.
func (p palette) paint(o model.Outcome, count int) string {
	s := strconv.Itoa(count)
	if count == 0 || !o.Valid() {
		return s
	}
	switch o {
	case model.OutcomePassed, model.OutcomeXFailed:
		return p.good(s)
	case model.OutcomeFailed, model.OutcomeError, model.OutcomeXPassed:
		return p.bad(s)
	default:
		return p.neutral(s)
	}
}

func (p palette) kind(k model.ChangeKind) string {
	switch k {
	case model.ChangeRecovered:
		return p.good(string(k))
	case model.ChangeRegressed:
		return p.bad(string(k))
	default:
		return p.neutral(string(k))
	}
}

// outcomeRow is one line of the outcome counters.
type outcomeRow struct {
	label   string
	outcome model.Outcome
	count   int
}

// outcomeRows lists the counters of the summary. The pytest-html only
// counters are left out of JUnit summaries.
func outcomeRows(summary *model.Summary) []outcomeRow {
	rows := []outcomeRow{
		{label: "Tests", outcome: -1, count: summary.Tests},
		{label: "Passed", outcome: model.OutcomePassed, count: summary.Passed},
		{label: "Failed", outcome: model.OutcomeFailed, count: summary.Failed},
		{label: "Errors", outcome: model.OutcomeError, count: summary.Errors},
		{label: "Skipped", outcome: model.OutcomeSkipped, count: summary.Skipped},
	}
	if summary.Format == model.FormatHTML {
		rows = append(rows,
			outcomeRow{label: "XFailed", outcome: model.OutcomeXFailed, count: summary.XFailed},
			outcomeRow{label: "XPassed", outcome: model.OutcomeXPassed, count: summary.XPassed},
			outcomeRow{label: "Reruns", outcome: model.OutcomeRerun, count: summary.Reruns},
		)
	}
	return rows
}

func formatLabel(f model.Format) string {
	switch f {
	case model.FormatJUnit:
		return "JUnit"
	case model.FormatHTML:
		return "pytest-html"
	default:
		return string(f)
	}
}

// sourceName returns the path of the source at index i.
func sourceName(summary *model.Summary, i int) string {
	if i >= 0 && i < len(summary.Sources) {
		return summary.Sources[i]
	}
	return fmt.Sprintf("#%d", i)
}

// signatureCount holds a signature name and its count.
type signatureCount struct {
	Name  string
	Count int
}

// sortedSignatures returns signatures sorted by count (descending), then name (ascending).
func sortedSignatures(summary map[string]int) []signatureCount {
	result := make([]signatureCount, 0, len(summary))
	for name, count := range summary {
		result = append(result, signatureCount{Name: name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Name < result[j].Name
	})
	return result
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Format("2006-01-02T15:04:05.999999Z07:00")
}

func formatSeconds(secs float64) string {
	return strconv.FormatFloat(secs, 'f', 3, 64)
}

// truncateForTerminal truncates an excerpt to maxLen terminal cells.
func truncateForTerminal(s string, maxLen int) string {
	// Collapse newlines and repeated spaces for single-line display
	s = strings.Join(strings.Fields(s), " ")

	return runewidth.Truncate(s, maxLen, "...")
}

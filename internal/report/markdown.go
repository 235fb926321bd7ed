package report

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/zytedata/onefile/internal/model"
)

// WriteMarkdown writes the summary as Markdown to path.
func WriteMarkdown(fs afero.Fs, path string, summary *model.Summary) error {
	if summary == nil {
		return fmt.Errorf("summary is required")
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory for %s: %w", path, err)
	}

	content := RenderMarkdown(summary)

	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write summary to %s: %w", path, err)
	}

	return nil
}

// RenderMarkdown renders the summary as a Markdown string.
func RenderMarkdown(summary *model.Summary) string {
	if summary == nil {
		return ""
	}

	var sb strings.Builder

	// Header
	sb.WriteString("# Merged Test Report\n\n")

	// Summary section
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Format | %s |\n", formatLabel(summary.Format)))
	sb.WriteString(fmt.Sprintf("| Name | %s |\n", escapeMarkdown(summary.Name)))
	sb.WriteString(fmt.Sprintf("| Sources | %d |\n", len(summary.Sources)))
	sb.WriteString(fmt.Sprintf("| Output | %s |\n", escapeMarkdown(summary.Output)))
	sb.WriteString(fmt.Sprintf("| Timestamp | %s |\n", formatTimestamp(summary.Timestamp)))
	sb.WriteString(fmt.Sprintf("| Total Time | %ss |\n", formatSeconds(summary.Time)))
	sb.WriteString("\n")

	// Outcomes section
	sb.WriteString("## Outcomes\n\n")
	sb.WriteString("| Outcome | Count |\n")
	sb.WriteString("|---------|-------|\n")
	for _, row := range outcomeRows(summary) {
		sb.WriteString(fmt.Sprintf("| %s | %d |\n", row.label, row.count))
	}
	sb.WriteString("\n")

	// Changed outcomes section
	sb.WriteString("## Changed Outcomes\n\n")
	if len(summary.Changes) > 0 {
		sb.WriteString("| Test | From | To | Source | Kind |\n")
		sb.WriteString("|------|------|----|--------|------|\n")
		for _, c := range summary.Changes {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
				escapeMarkdown(c.Test),
				c.From,
				c.To,
				escapeMarkdown(sourceName(summary, c.Source)),
				c.Kind,
			))
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("No outcome was replaced by a newer source.\n\n")
	}

	// Failures section
	if len(summary.Failures) > 0 {
		sb.WriteString("## Failures\n\n")
		for i, f := range summary.Failures {
			sb.WriteString(fmt.Sprintf("### %d. %s\n\n", i+1, escapeMarkdown(f.Test)))
			sb.WriteString(fmt.Sprintf("- **%s** [%s]\n", f.Outcome, f.Signature))
			if f.Excerpt != "" {
				sb.WriteString(fmt.Sprintf("  ```\n  %s\n  ```\n", truncateForTerminal(f.Excerpt, 200)))
			}
			sb.WriteString("\n")
		}
	}

	// Failure Signatures section
	if len(summary.SignatureSummary) > 0 {
		sb.WriteString("## Failure Signatures\n\n")
		sb.WriteString("| Signature | Count |\n")
		sb.WriteString("|-----------|-------|\n")

		for _, sig := range sortedSignatures(summary.SignatureSummary) {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", sig.Name, sig.Count))
		}
		sb.WriteString("\n")
	}

	// Sources section
	if len(summary.Sources) > 0 {
		sb.WriteString("## Sources\n\n")
		for i, src := range summary.Sources {
			sb.WriteString(fmt.Sprintf("%d. `%s`\n", i+1, src))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

// escapeMarkdown escapes special Markdown characters in a string.
func escapeMarkdown(s string) string {
	// Escape pipe characters which break tables
	s = strings.ReplaceAll(s, "|", "\\|")
	return s
}

package report

import (
	"encoding/json"
	"fmt"
	"strings"
)

// render fills report.JSON and/or report.Markdown per
// report.OutputFormat.
func (g *Generator) render(report *Report) error {
	switch report.OutputFormat {
	case OutputJSON, "":
		return renderJSON(report)
	case OutputMarkdown:
		report.Markdown = renderMarkdown(*report)
		return nil
	case OutputBoth:
		if err := renderJSON(report); err != nil {
			return err
		}
		report.Markdown = renderMarkdown(*report)
		return nil
	default:
		return fmt.Errorf("report: unknown output format %q", report.OutputFormat)
	}
}

func renderJSON(report *Report) error {
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("report: render json: %w", err)
	}
	report.JSON = string(b)
	return nil
}

func renderMarkdown(r Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", r.Title)
	fmt.Fprintf(&b, "%s\n\n", r.Scope)
	fmt.Fprintf(&b, "**Period:** %s — %s (%s)\n\n", r.Period.Start.Format("2006-01-02"), r.Period.End.Format("2006-01-02"), r.Period.Type)
	fmt.Fprintf(&b, "**Compliance rate:** %.1f%%\n\n", r.Summary.ComplianceRate*100)

	b.WriteString("## Summary\n\n")
	b.WriteString("| Status | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| Compliant | %d |\n", r.Summary.Compliant)
	fmt.Fprintf(&b, "| Partially compliant | %d |\n", r.Summary.PartiallyCompliant)
	fmt.Fprintf(&b, "| Non-compliant | %d |\n", r.Summary.NonCompliant)
	fmt.Fprintf(&b, "| Not evaluated | %d |\n", r.Summary.NotEvaluated)
	fmt.Fprintf(&b, "| Not applicable | %d |\n", r.Summary.NotApplicable)
	fmt.Fprintf(&b, "| Compensating | %d |\n\n", r.Summary.Compensating)

	b.WriteString("## Controls\n\n")
	b.WriteString("| Control | Title | Status | Evidence |\n|---|---|---|---|\n")
	for _, c := range r.Controls {
		fmt.Fprintf(&b, "| %s | %s | %s | %d |\n", c.Control.ID, c.Control.Title, c.Status, c.EvidenceCount)
	}

	if r.Signature != nil {
		fmt.Fprintf(&b, "\n---\n\nSigned by %s (%s) at %s. Content hash: `%s`.\n",
			r.Signature.KeyID, r.Signature.Algorithm, r.Signature.SignedAt.Format("2006-01-02T15:04:05Z07:00"), r.Signature.ContentHash)
	}

	return b.String()
}

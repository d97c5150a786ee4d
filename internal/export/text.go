// Package export renders explanations for download.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/medreport-explainer/internal/domain"
)

const (
	title     = "Medical Report Explanation"
	lineWidth = 80
)

// Text renders e as wrapped plain text. The disclaimer appears at the top and the bottom.
func Text(e *domain.FullExplanation) string {
	var sb strings.Builder

	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("=", len(title)) + "\n\n")
	writeWrapped(&sb, e.Disclaimer, "")
	sb.WriteString("\n")

	reportType := strings.ToUpper(string(e.ReportType))
	if e.ReportLabel != "" {
		reportType = fmt.Sprintf("%s (%s)", reportType, e.ReportLabel)
	}
	sb.WriteString(fmt.Sprintf("Report Type: %s\n\n", reportType))

	heading(&sb, "Summary")
	writeWrapped(&sb, e.Summary, "")
	sb.WriteString("\n")

	if len(e.KeyFindings) > 0 {
		heading(&sb, "Key Findings")
		for _, k := range e.KeyFindings {
			line := k.Finding
			if k.Modifier != "" {
				line += " (" + k.Modifier + ")"
			}
			writeWrapped(&sb, "- "+line, "  ")
			if k.Implication != "" {
				writeWrapped(&sb, k.Implication, "  ")
			}
		}
		sb.WriteString("\n")
	}

	heading(&sb, "Detailed Sections")
	for _, s := range e.Sections {
		sb.WriteString(s.OriginalTitle + "\n")
		writeWrapped(&sb, s.Summary, "  ")
		sb.WriteString("\n")
	}

	if len(e.Glossary) > 0 {
		heading(&sb, "Key Terms")
		for _, g := range e.Glossary {
			writeWrapped(&sb, fmt.Sprintf("%s: %s", g.Term, g.Definition), "  ")
		}
		sb.WriteString("\n")
	}

	if len(e.Questions) > 0 {
		heading(&sb, "Questions to Ask Your Clinician")
		for _, q := range e.Questions {
			writeWrapped(&sb, fmt.Sprintf("* %s (%s)", q.Question, q.Context), "  ")
		}
		sb.WriteString("\n")
	}

	sb.WriteString(strings.Repeat("-", lineWidth) + "\n")
	writeWrapped(&sb, e.Disclaimer, "")
	return sb.String()
}

// WriteText writes the text rendering of e to w.
func WriteText(w io.Writer, e *domain.FullExplanation) error {
	_, err := io.WriteString(w, Text(e))
	return err
}

func heading(sb *strings.Builder, name string) {
	sb.WriteString(strings.ToUpper(name) + "\n")
	sb.WriteString(strings.Repeat("-", len(name)) + "\n")
}

// writeWrapped breaks text on spaces so no line exceeds lineWidth, unless a single word is
// longer. Continuation lines are prefixed with indent.
func writeWrapped(sb *strings.Builder, text, indent string) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return
	}
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > lineWidth {
			sb.WriteString(line + "\n")
			line = indent + w
			continue
		}
		line += " " + w
	}
	sb.WriteString(line + "\n")
}

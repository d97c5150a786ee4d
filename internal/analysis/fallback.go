package analysis

import (
	"fmt"
	"strings"

	"github.com/medreport-explainer/internal/domain"
)

// LocalDisclaimer marks explanations built from the local dictionary.
const LocalDisclaimer = "This explanation was generated using a local medical dictionary. " +
	"It explains terms found in your report but does not interpret the specific clinical context. " +
	"Always consult your clinician."

const noSectionsSummary = "The report text did not contain any recognized section headers."

// GenerateLocalExplanation builds a complete explanation without any remote call. It never
// fails: every field is populated for any input, including empty text.
func GenerateLocalExplanation(text string) *domain.FullExplanation {
	classification := ClassifyReportType(text)
	sections := SegmentText(text)

	explained := make([]domain.ExplanationSection, 0, len(sections))
	for _, s := range sections {
		explained = append(explained, domain.ExplanationSection{
			OriginalTitle: s.Title,
			Summary:       sectionSummary(s),
		})
	}

	return &domain.FullExplanation{
		ReportType: classification.Type,
		Summary:    overallSummary(sections),
		Sections:   explained,
		Glossary:   FindTerms(text),
		Questions:  LocalQuestions(),
		Disclaimer: LocalDisclaimer,
		Source:     domain.SourceLocal,
	}
}

func overallSummary(sections []domain.Section) string {
	if len(sections) == 0 {
		return noSectionsSummary
	}
	titles := make([]string, 0, 3)
	for i, s := range sections {
		if i == 3 {
			break
		}
		titles = append(titles, s.Title)
	}
	suffix := "."
	if len(sections) > 3 {
		suffix = "..."
	}
	return "The report contains findings related to: " + strings.Join(titles, ", ") + suffix
}

func sectionSummary(s domain.Section) string {
	terms := FindTerms(s.Content)
	if len(terms) == 0 {
		return fmt.Sprintf("This section contains %d characters. Terms found: None detected.", len(s.Content))
	}
	names := make([]string, len(terms))
	for i, t := range terms {
		names[i] = t.Term
	}
	return fmt.Sprintf("This section contains %d characters. Terms found: %s.", len(s.Content), strings.Join(names, ", "))
}

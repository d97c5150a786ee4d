// Package analysis holds the local, dependency-free report analyzers: the keyword report-type
// classifier, the header-based section segmenter, the abbreviation dictionary, the fixed
// question table, and the local explanation generator composed from them.
//
// Everything here is pure and read-only after package initialization, so it is safe to call
// from concurrent requests.
package analysis

import (
	"fmt"
	"strings"

	"github.com/medreport-explainer/internal/domain"
)

// MinKeywordScore is the score below which a report is classified as general.
const MinKeywordScore = 2

// highConfidenceScore is the score above which confidence is reported as high.
const highConfidenceScore = 5

type keywordSet struct {
	reportType domain.ReportType
	keywords   []string
}

// reportKeywords is evaluated in order; the order only matters for the reason text of ties.
var reportKeywords = []keywordSet{
	{domain.ReportTypeLab, []string{
		"reference range", "range", "units", "analyte", "flag", "mmol/l", "mg/dl",
		"specimen", "collection date",
	}},
	{domain.ReportTypeImaging, []string{
		"exam:", "technique:", "findings:", "impression:", "contrast", "mri", "ct",
		"ultrasound", "x-ray",
	}},
	{domain.ReportTypeDischarge, []string{
		"discharge summary", "discharge diagnosis", "hospital course", "discharge medications",
		"patient instructions", "follow-up",
	}},
	{domain.ReportTypePathology, []string{
		"pathology", "biopsy", "histology", "gross description", "microscopic description",
		"margins", "frozen section", "cytology",
	}},
}

// ClassifyReportType labels text with a report type using keyword presence. Each keyword of
// a category contributes at most one point, matched as a case-insensitive substring. The
// strictly highest category wins; ties and scores below MinKeywordScore yield general.
func ClassifyReportType(text string) domain.ReportTypeResult {
	lower := strings.ToLower(text)

	best := domain.ReportTypeGeneral
	bestScore := 0
	tied := false
	for _, set := range reportKeywords {
		score := 0
		for _, kw := range set.keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = set.reportType, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}

	if bestScore < MinKeywordScore {
		return domain.ReportTypeResult{
			Type:       domain.ReportTypeGeneral,
			Confidence: 0.1,
			Band:       domain.ConfidenceLow,
			Reason:     "Insufficient keywords",
		}
	}
	if tied {
		return domain.ReportTypeResult{
			Type:       domain.ReportTypeGeneral,
			Confidence: 0.1,
			Band:       domain.ConfidenceLow,
			Reason:     fmt.Sprintf("Tied keyword score of %d across categories", bestScore),
		}
	}

	result := domain.ReportTypeResult{
		Type:       best,
		Confidence: 0.6,
		Band:       domain.ConfidenceMedium,
		Reason:     fmt.Sprintf("Matched %d keywords for %s", bestScore, best),
	}
	if bestScore > highConfidenceScore {
		result.Confidence = 0.9
		result.Band = domain.ConfidenceHigh
	}
	return result
}

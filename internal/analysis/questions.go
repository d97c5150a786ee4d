package analysis

import (
	"strings"

	"github.com/medreport-explainer/internal/domain"
)

type questionSet struct {
	keywords  []string
	questions []domain.QuestionPrompt
}

// questionTable is matched in order against the lowercased report-type label.
var questionTable = []questionSet{
	{
		keywords: []string{"image", "imaging", "scan", "ray", "xray", "mri", "ct"},
		questions: []domain.QuestionPrompt{
			{
				Question: "What do the findings described in this report mean?",
				Context:  "Imaging reports describe what was seen on the images using technical language.",
			},
			{
				Question: "Is any follow-up imaging mentioned in this report?",
				Context:  "Reports sometimes mention comparison with prior or future studies.",
			},
			{
				Question: "How does this result compare with any previous scans?",
				Context:  "Changes over time are often described relative to earlier images.",
			},
		},
	},
	{
		keywords: []string{"path", "biopsy", "tissue"},
		questions: []domain.QuestionPrompt{
			{
				Question: "Can the tissue description in this report be explained in plain language?",
				Context:  "Pathology reports describe cells and tissue examined under a microscope.",
			},
			{
				Question: "What do the terms about margins or grade in this report refer to?",
				Context:  "Pathology reports often use standardized terms to describe samples.",
			},
			{
				Question: "Will these results be reviewed together with other tests?",
				Context:  "Pathology results are usually considered alongside other information.",
			},
		},
	},
	{
		keywords: []string{"lab", "blood", "urine"},
		questions: []domain.QuestionPrompt{
			{
				Question: "Which values in this report are outside the reference range?",
				Context:  "Lab reports often flag values that fall outside a reference range.",
			},
			{
				Question: "What does each of these tests measure?",
				Context:  "Each test measures a specific substance in blood or urine.",
			},
			{
				Question: "Are any of these tests usually repeated over time?",
				Context:  "Some values are checked again later to look at trends.",
			},
		},
	},
	{
		keywords: []string{"discharge", "hospital", "admission"},
		questions: []domain.QuestionPrompt{
			{
				Question: "What happened during the hospital stay described in this summary?",
				Context:  "Discharge summaries outline the course of a hospital stay.",
			},
			{
				Question: "Which follow-up appointments are listed in this summary?",
				Context:  "Discharge summaries often list planned appointments and contacts.",
			},
			{
				Question: "Who can be contacted with questions after discharge?",
				Context:  "Care teams usually provide contact details for questions.",
			},
		},
	},
}

var genericQuestions = []domain.QuestionPrompt{
	{
		Question: "Can the main points of this report be explained in plain language?",
		Context:  "Medical reports often use technical terms.",
	},
	{
		Question: "Are there any next steps mentioned in this report?",
		Context:  "Reports sometimes mention follow-up plans.",
	},
}

// localQuestions are the category-agnostic prompts used by the local generator.
var localQuestions = []domain.QuestionPrompt{
	{Question: "What do these results mean for my overall health?", Context: "General inquiry"},
	{Question: "Are any values outside the normal range significant?", Context: "Lab results context"},
	{Question: "Do I need any follow-up testing?", Context: "Next steps"},
}

// QuestionsFor returns the fixed question list for a free-form report-type label such as
// "CT Chest" or "lab". Labels with no matching keyword get the generic list. The result is
// a fresh copy.
func QuestionsFor(reportType string) []domain.QuestionPrompt {
	lower := strings.ToLower(reportType)
	for _, set := range questionTable {
		for _, kw := range set.keywords {
			if domain.ContainsKeyword(lower, kw) {
				return copyQuestions(set.questions)
			}
		}
	}
	return copyQuestions(genericQuestions)
}

// LocalQuestions returns the fixed prompts of the local generator.
func LocalQuestions() []domain.QuestionPrompt {
	return copyQuestions(localQuestions)
}

func copyQuestions(q []domain.QuestionPrompt) []domain.QuestionPrompt {
	return append([]domain.QuestionPrompt(nil), q...)
}

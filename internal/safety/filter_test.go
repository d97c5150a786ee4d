package safety

import (
	"testing"

	"github.com/medreport-explainer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsSafe(t *testing.T) {
	f := DefaultFilter()

	tests := []struct {
		name string
		text string
		safe bool
	}{
		{"empty", "", true},
		{"attributed finding", "The report states there is a small nodule.", true},
		{"second person diagnosis", "You have a mass in the lung.", false},
		{"second person directive", "Your doctor says you should rest.", false},
		{"first person confirmation", "This confirms pneumonia.", false},
		{"this indicates", "this indicates infection", false},
		{"prognosis", "The prognosis is good.", false},
		{"survival", "Five-year survival is high.", false},
		{"life expectancy", "Life expectancy is unchanged.", false},
		{"terminal", "The condition is terminal.", false},
		{"cure", "There is a cure.", false},
		{"certainty", "It is definitely benign.", false},
		{"percent certainty", "This is 100% normal.", false},
		{"percent with space", "It is 100 % clear.", false},
		{"stop taking", "Stop taking aspirin.", false},
		{"prescribe", "A doctor may prescribe antibiotics.", false},
		{"surgery required", "Surgery is required.", false},
		{"no pronoun claim", "Platelets are cells that help blood clot.", true},
		{"word boundary cure", "The sample was secured.", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.safe, f.IsSafe(tt.text))
		})
	}
}

func TestSanitize_SentenceLevel(t *testing.T) {
	f := DefaultFilter()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "drops unsafe second sentence",
			input:    "The scan is unremarkable. You have a mass.",
			expected: "The scan is unremarkable.",
		},
		{
			name:     "keeps safe content around unsafe",
			input:    "The lungs are clear. This confirms infection! The heart is normal size.",
			expected: "The lungs are clear. The heart is normal size.",
		},
		{
			name:     "newline separated",
			input:    "Glucose is blood sugar.\nYou need insulin.\nIt is measured in mg/dL.",
			expected: "Glucose is blood sugar.\nIt is measured in mg/dL.",
		},
		{
			name:     "all unsafe becomes fallback",
			input:    "You have cancer. The prognosis is poor.",
			expected: DefaultFallbackSentence,
		},
		{
			name:     "unterminated single unit",
			input:    "you must stop",
			expected: DefaultFallbackSentence,
		},
		{
			name:     "safe passes verbatim",
			input:    "Creatinine is a waste product filtered by the kidneys.",
			expected: "Creatinine is a waste product filtered by the kidneys.",
		},
		{
			name:     "empty stays empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := f.Sanitize(tt.input)
			assert.Equal(t, tt.expected, out)
			assert.True(t, f.IsSafe(out))
		})
	}
}

func TestSanitize_ClaimWrappedAcrossLines(t *testing.T) {
	var dropped []Category
	f, err := NewFilter(Policy{}, WithObserver(func(c Category) { dropped = append(dropped, c) }))
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "directive split by newline",
			input:    "The report lists medications. Please stop\ntaking aspirin.",
			expected: "The report lists medications.",
		},
		{
			name:     "surgery requirement split by newline",
			input:    "The note says surgery\nis required.",
			expected: DefaultFallbackSentence,
		},
		{
			name:     "certainty split by newline",
			input:    "Recovery is 100\n% expected.",
			expected: DefaultFallbackSentence,
		},
		{
			name:     "safe neighbours kept",
			input:    "Aspirin is listed.\nPlease stop\ntaking it.\nThe dose is 81 mg.",
			expected: "Aspirin is listed.\nThe dose is 81 mg.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := f.Sanitize(tt.input)
			assert.Equal(t, tt.expected, out)
			assert.True(t, f.IsSafe(out))
		})
	}
	assert.Contains(t, dropped, CategoryTreatment)
	assert.Contains(t, dropped, CategoryPrognostic)
}

func TestSanitize_NeverEmptyForNonEmptyInput(t *testing.T) {
	f := DefaultFilter()
	inputs := []string{
		"You have it.",
		"...",
		"   ",
		"This means trouble!!!",
	}
	for _, in := range inputs {
		out := f.Sanitize(in)
		if in == "   " || in == "..." {
			assert.True(t, f.IsSafe(out))
			continue
		}
		assert.NotEmpty(t, out, "input %q", in)
	}
}

func TestSanitize_FieldGranularity(t *testing.T) {
	f, err := NewFilter(Policy{Granularity: GranularityField})
	require.NoError(t, err)

	assert.Equal(t, DefaultFallbackSentence, f.Sanitize("The scan is unremarkable. You have a mass."))
	assert.Equal(t, "The scan is unremarkable.", f.Sanitize("The scan is unremarkable."))
}

func TestNewFilter_CustomPolicy(t *testing.T) {
	f, err := NewFilter(Policy{
		FallbackSentence:   "This item appears in the report.",
		DiagnosticPatterns: []string{`(?i)\bit is certain\b`},
	})
	require.NoError(t, err)

	assert.False(t, f.IsSafe("It is certain to spread."))
	// Custom diagnostic list replaces the default one.
	assert.True(t, f.IsSafe("This confirms the finding."))
	// Other categories keep their defaults.
	assert.False(t, f.IsSafe("The prognosis is unclear."))
	assert.Equal(t, "This item appears in the report.", f.Sanitize("It is certain."))
}

func TestNewFilter_Errors(t *testing.T) {
	_, err := NewFilter(Policy{Granularity: "word"})
	assert.Error(t, err)

	_, err = NewFilter(Policy{TreatmentPatterns: []string{"("}})
	assert.Error(t, err)

	_, err = NewFilter(Policy{FallbackSentence: "You have been warned."})
	assert.Error(t, err)
}

func TestWithObserver(t *testing.T) {
	var dropped []Category
	f, err := NewFilter(Policy{}, WithObserver(func(c Category) { dropped = append(dropped, c) }))
	require.NoError(t, err)

	f.Sanitize("Normal study. You have a mass. Survival is likely. Stop taking it.")
	assert.Equal(t, []Category{CategoryDiagnostic, CategoryPrognostic, CategoryTreatment}, dropped)
}

func TestSanitizeExplanation(t *testing.T) {
	f := DefaultFilter()

	in := &domain.FullExplanation{
		ReportType: domain.ReportTypeImaging,
		Summary:    "The report describes a chest CT. This confirms cancer.",
		KeyFindings: []domain.KeyFinding{
			{Finding: "The report notes a 4 mm nodule.", Implication: "You need surgery."},
		},
		Sections: []domain.ExplanationSection{
			{OriginalTitle: "Findings", Summary: "The prognosis is poor."},
		},
		Glossary: []domain.TermDefinition{
			{Term: "Nodule", Definition: "A small rounded growth. You should worry."},
		},
		Questions: []domain.QuestionPrompt{
			{Question: "What does this mean?", Context: "Your doctor must explain."},
		},
		Disclaimer: "",
	}

	out := f.SanitizeExplanation(in)

	assert.Equal(t, "The report describes a chest CT.", out.Summary)
	assert.Equal(t, DefaultFallbackSentence, out.Sections[0].Summary)
	assert.Equal(t, "A small rounded growth.", out.Glossary[0].Definition)
	assert.Equal(t, DefaultFallbackSentence, out.Questions[0].Context)
	assert.Equal(t, "The report notes a 4 mm nodule.", out.KeyFindings[0].Finding)
	assert.Equal(t, DefaultFallbackSentence, out.KeyFindings[0].Implication)
	assert.Equal(t, DefaultDisclaimer, out.Disclaimer)

	// Input is untouched.
	assert.Equal(t, "The report describes a chest CT. This confirms cancer.", in.Summary)
	assert.Equal(t, "", in.Disclaimer)

	for _, field := range collectFields(out) {
		assert.True(t, f.IsSafe(field), field)
	}
}

func TestSanitizeExplanation_UnsafeDisclaimerReplaced(t *testing.T) {
	f := DefaultFilter()
	out := f.SanitizeExplanation(&domain.FullExplanation{Disclaimer: "You should see a doctor."})
	assert.Equal(t, DefaultDisclaimer, out.Disclaimer)
}

func TestSanitizePreview(t *testing.T) {
	f := DefaultFilter()
	in := &domain.PreviewData{
		PreviewTerm: &domain.TermDefinition{Term: "Lesion", Definition: "Area of abnormal tissue. This means cancer."},
		IsLocked:    true,
	}
	out := f.SanitizePreview(in)
	assert.Equal(t, "Area of abnormal tissue.", out.PreviewTerm.Definition)
	assert.Equal(t, "Area of abnormal tissue. This means cancer.", in.PreviewTerm.Definition)
	assert.Nil(t, f.SanitizePreview(nil))
}

func collectFields(e *domain.FullExplanation) []string {
	fields := []string{e.Summary, e.Disclaimer}
	for _, s := range e.Sections {
		fields = append(fields, s.Summary)
	}
	for _, g := range e.Glossary {
		fields = append(fields, g.Definition)
	}
	for _, q := range e.Questions {
		fields = append(fields, q.Context)
	}
	return fields
}

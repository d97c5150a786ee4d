package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medreport-explainer/internal/analysis"
	"github.com/medreport-explainer/internal/domain"
	"github.com/medreport-explainer/internal/safety"
)

const ctReport = `CT Chest
Findings: A 5 mm nodule in the right upper lobe. Mild atelectasis at the bases.
Impression: Small pulmonary nodule.`

var (
	previewModels = []string{"preview-a", "preview-b"}
	fullModels    = []string{"full-a", "full-b"}
)

type testService struct {
	client   *MockModelClient
	cache    *DefinitionCache
	recorder *recordingRecorder
	service  *ExplainerService
}

func newTestService(t *testing.T) *testService {
	t.Helper()
	client := new(MockModelClient)
	logger := testLogger()
	filter := safety.DefaultFilter()
	cache := NewDefinitionCache(64, time.Hour, nil, logger)
	cfg := domain.AnalysisConfig{MaxDefinitionTerms: 15, PreviewMaxChars: 15000}

	preview := NewPreviewAnalyzer(NewModelInvoker(client, previewModels, logger), filter, cfg, logger)
	full := NewFullAnalyzer(NewModelInvoker(client, fullModels, logger), cache, filter, cfg, logger)
	svc := NewExplainerService(preview, full, logger)

	rec := &recordingRecorder{}
	svc.SetRecorder(rec)
	return &testService{client: client, cache: cache, recorder: rec, service: svc}
}

func extractionJSON(t *testing.T, label, summary string, candidates ...string) string {
	terms := make([]map[string]string, 0, len(candidates))
	for _, c := range candidates {
		terms = append(terms, map[string]string{"term": c, "section": "Findings", "context": "The report mentions " + c + "."})
	}
	return mustJSON(t, map[string]any{
		"reportType": label,
		"summary":    summary,
		"key_findings": []map[string]string{
			{"finding": "The report notes a 5 mm nodule.", "modifier": "right upper lobe", "implication": "A nodule is a small rounded spot."},
		},
		"sections": []map[string]string{
			{"originalTitle": "Findings", "summary": "The report describes a small nodule and mild atelectasis."},
			{"originalTitle": "Impression", "summary": "The report states the main finding is a small nodule."},
		},
		"termCandidates": terms,
		"disclaimer":     "Educational only.",
	})
}

type defFixture struct {
	term, definition string
	allowed          bool
	rewrite          *string
}

func definitionJSON(t *testing.T, defs ...defFixture) string {
	items := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		items = append(items, map[string]any{
			"term":        d.term,
			"definition":  d.definition,
			"category":    "condition",
			"safetyCheck": map[string]any{"allowed": d.allowed, "rewrite": d.rewrite},
		})
	}
	return mustJSON(t, map[string]any{"definitions": items})
}

func assertExplanationSafe(t *testing.T, e *domain.FullExplanation) {
	t.Helper()
	filter := safety.DefaultFilter()
	assert.True(t, filter.IsSafe(e.Summary), "summary: %q", e.Summary)
	assert.True(t, filter.IsSafe(e.Disclaimer), "disclaimer: %q", e.Disclaimer)
	for _, s := range e.Sections {
		assert.True(t, filter.IsSafe(s.Summary), "section %s: %q", s.OriginalTitle, s.Summary)
	}
	for _, g := range e.Glossary {
		assert.True(t, filter.IsSafe(g.Definition), "glossary %s: %q", g.Term, g.Definition)
	}
	for _, q := range e.Questions {
		assert.True(t, filter.IsSafe(q.Context), "question context: %q", q.Context)
	}
	for _, k := range e.KeyFindings {
		assert.True(t, filter.IsSafe(k.Finding+" "+k.Modifier+" "+k.Implication))
	}
	assert.NotEmpty(t, e.Disclaimer)
}

func TestExplainerService_Preview(t *testing.T) {
	ts := newTestService(t)
	ts.client.onModel("preview-a").Return(mustJSON(t, map[string]any{
		"reportType":       "CT Chest",
		"detectedSections": []string{"Findings", " ", "Impression"},
		"detectedTerms": []map[string]string{
			{"term": "Nodule", "category": "condition"},
			{"term": "Atelectasis", "category": "condition"},
		},
		"previewTerm": map[string]string{"term": "Nodule", "definition": "A small rounded growth of tissue.", "category": "condition"},
	}), nil)

	preview, err := ts.service.Preview(context.Background(), &domain.AnalysisRequest{Text: ctReport})

	require.NoError(t, err)
	assert.Equal(t, domain.ReportTypeImaging, preview.ReportType)
	assert.Equal(t, []string{"Findings", "Impression"}, preview.DetectedSections)
	assert.Equal(t, 2, preview.DetectedTermsCount)
	assert.True(t, preview.IsLocked)
	assert.False(t, preview.Degraded)
	require.NotNil(t, preview.PreviewTerm)
	assert.Equal(t, "Nodule", preview.PreviewTerm.Term)
}

func TestExplainerService_Preview_SanitizesPreviewTerm(t *testing.T) {
	ts := newTestService(t)
	ts.client.onModel("preview-a").Return(mustJSON(t, map[string]any{
		"reportType":       "lab",
		"detectedSections": []string{},
		"detectedTerms":    []map[string]string{{"term": "Anemia"}},
		"previewTerm":      map[string]string{"term": "Anemia", "definition": "You have anemia and need iron."},
	}), nil)

	preview, err := ts.service.Preview(context.Background(), &domain.AnalysisRequest{Text: "Hemoglobin low"})

	require.NoError(t, err)
	require.NotNil(t, preview.PreviewTerm)
	assert.Equal(t, safety.DefaultFallbackSentence, preview.PreviewTerm.Definition)
	assert.Equal(t, "general", preview.PreviewTerm.Category)
}

func TestExplainerService_Preview_DegradesOnFailure(t *testing.T) {
	ts := newTestService(t)
	ts.client.onModel("preview-a").Return("", transientErr("preview-a", errors.New("unavailable")))
	ts.client.onModel("preview-b").Return("{not json", nil)

	preview, err := ts.service.Preview(context.Background(), &domain.AnalysisRequest{Text: ctReport})

	require.NoError(t, err)
	assert.True(t, preview.Degraded)
	assert.True(t, preview.IsLocked)
	assert.Equal(t, domain.ReportTypeGeneral, preview.ReportType)
	assert.Empty(t, preview.DetectedSections)
	assert.Nil(t, preview.PreviewTerm)
	assert.Equal(t, []string{"preview/model_chain_failed"}, ts.recorder.fallbacks)
}

func TestExplainerService_Preview_AuthErrorPropagates(t *testing.T) {
	ts := newTestService(t)
	ts.client.onModel("preview-a").Return("", authErr("preview-a"))

	_, err := ts.service.Preview(context.Background(), &domain.AnalysisRequest{Text: ctReport})

	assert.True(t, domain.IsAuthError(err))
	ts.client.AssertNumberOfCalls(t, "Invoke", 1)
}

func TestExplainerService_RejectsEmptyRequest(t *testing.T) {
	ts := newTestService(t)

	_, err := ts.service.Preview(context.Background(), &domain.AnalysisRequest{Text: "   "})
	var validationErr *domain.ValidationError
	require.True(t, errors.As(err, &validationErr))

	_, err = ts.service.Explain(context.Background(), nil)
	require.True(t, errors.As(err, &validationErr))
	ts.client.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExplainerService_Explain(t *testing.T) {
	ts := newTestService(t)
	rewrite := "A term for an area of lung tissue that is not fully expanded."

	ts.client.onPhase("full-a", extractionSystemInstruction).
		Return(extractionJSON(t, "CT Chest", "The report describes a small lung nodule.", "Nodule", "atelectasis", "NODULE", ""), nil)
	ts.client.onPhase("full-a", definitionSystemInstruction).
		Return(definitionJSON(t,
			defFixture{term: "Atelectasis", definition: "Partial collapse of lung tissue; prognosis is excellent.", rewrite: &rewrite},
			defFixture{term: "Nodule", definition: "A small rounded spot seen on imaging.", allowed: true},
			defFixture{term: "Pleura", definition: "The thin lining around the lungs.", allowed: true},
		), nil)

	explanation, err := ts.service.Explain(context.Background(), &domain.AnalysisRequest{Text: ctReport})

	require.NoError(t, err)
	assert.Equal(t, domain.SourceRemote, explanation.Source)
	assert.Equal(t, domain.ReportTypeImaging, explanation.ReportType)
	assert.Equal(t, "CT Chest", explanation.ReportLabel)
	assert.Equal(t, analysis.QuestionsFor("CT Chest"), explanation.Questions)
	assert.Equal(t, "Educational only.", explanation.Disclaimer)
	require.Len(t, explanation.Sections, 2)
	require.Len(t, explanation.KeyFindings, 1)

	require.Len(t, explanation.Glossary, 3)
	assert.Equal(t, "Nodule", explanation.Glossary[0].Term)
	assert.Equal(t, "Atelectasis", explanation.Glossary[1].Term)
	assert.Equal(t, rewrite, explanation.Glossary[1].Definition)
	assert.Equal(t, "Pleura", explanation.Glossary[2].Term)

	assertExplanationSafe(t, explanation)
	assert.Equal(t, 3, ts.cache.Len())
}

func withDisclaimer(t *testing.T, raw string, disclaimer *string) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &body))
	if disclaimer == nil {
		delete(body, "disclaimer")
	} else {
		body["disclaimer"] = *disclaimer
	}
	return mustJSON(t, body)
}

func TestExplainerService_Explain_Disclaimer(t *testing.T) {
	blank := "   "
	unsafe := "You have nothing to worry about."
	mixed := "Educational only. This confirms nothing is wrong."

	tests := []struct {
		name       string
		disclaimer *string
		expected   string
	}{
		{"omitted", nil, safety.DefaultDisclaimer},
		{"blank", &blank, safety.DefaultDisclaimer},
		{"entirely unsafe", &unsafe, safety.DefaultDisclaimer},
		{"unsafe sentence dropped", &mixed, "Educational only."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestService(t)
			raw := extractionJSON(t, "CT Chest", "The report describes a small lung nodule.")
			ts.client.onPhase("full-a", extractionSystemInstruction).Return(withDisclaimer(t, raw, tt.disclaimer), nil)

			explanation, err := ts.service.Explain(context.Background(), &domain.AnalysisRequest{Text: ctReport})

			require.NoError(t, err)
			assert.Equal(t, domain.SourceRemote, explanation.Source)
			assert.Equal(t, tt.expected, explanation.Disclaimer)
		})
	}
}

func TestExplainerService_Explain_UsesCachedDefinitions(t *testing.T) {
	ts := newTestService(t)
	ts.cache.Set(context.Background(), "nodule", &domain.TermDefinition{Term: "Nodule", Definition: "A small rounded spot.", Category: "condition"})

	ts.client.onPhase("full-a", extractionSystemInstruction).
		Return(extractionJSON(t, "CT Chest", "The report describes a small lung nodule.", "Nodule"), nil)

	explanation, err := ts.service.Explain(context.Background(), &domain.AnalysisRequest{Text: ctReport})

	require.NoError(t, err)
	require.Len(t, explanation.Glossary, 1)
	assert.Equal(t, "A small rounded spot.", explanation.Glossary[0].Definition)
	ts.client.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything, definitionSystemInstruction, mock.Anything, mock.Anything)
	assert.Equal(t, 1, ts.recorder.hits)
}

func TestExplainerService_Explain_DefinitionFailureLeavesGlossaryEmpty(t *testing.T) {
	ts := newTestService(t)
	ts.client.onPhase("full-a", extractionSystemInstruction).
		Return(extractionJSON(t, "Blood panel", "The report lists blood test values.", "Hemoglobin", "Platelets"), nil)
	ts.client.onPhase("full-a", definitionSystemInstruction).Return(`{"definitions":null}`, nil)
	ts.client.onPhase("full-b", definitionSystemInstruction).Return("", transientErr("full-b", context.DeadlineExceeded))

	explanation, err := ts.service.Explain(context.Background(), &domain.AnalysisRequest{Text: "Hemoglobin 10.1 g/dL"})

	require.NoError(t, err)
	assert.Equal(t, domain.SourceRemote, explanation.Source)
	assert.Equal(t, domain.ReportTypeLab, explanation.ReportType)
	assert.NotNil(t, explanation.Glossary)
	assert.Empty(t, explanation.Glossary)
	assert.Contains(t, ts.recorder.fallbacks, "definition/model_chain_failed")
}

func TestExplainerService_Explain_DefinitionAuthErrorPropagates(t *testing.T) {
	ts := newTestService(t)
	ts.client.onPhase("full-a", extractionSystemInstruction).
		Return(extractionJSON(t, "CT Chest", "The report describes a small lung nodule.", "Nodule"), nil)
	ts.client.onPhase("full-a", definitionSystemInstruction).Return("", authErr("full-a"))

	_, err := ts.service.Explain(context.Background(), &domain.AnalysisRequest{Text: ctReport})

	assert.True(t, domain.IsAuthError(err))
	ts.client.AssertNotCalled(t, "Invoke", mock.Anything, "full-b", definitionSystemInstruction, mock.Anything, mock.Anything)
}

func TestExplainerService_Explain_FallsBackToLocal(t *testing.T) {
	ts := newTestService(t)
	ts.client.onPhase("full-a", extractionSystemInstruction).Return("", transientErr("full-a", errors.New("overloaded")))
	ts.client.onPhase("full-b", extractionSystemInstruction).Return(`{"reportType":""}`, nil)

	explanation, err := ts.service.Explain(context.Background(), &domain.AnalysisRequest{Text: ctReport})

	require.NoError(t, err)
	assert.Equal(t, domain.SourceLocal, explanation.Source)
	assert.Equal(t, analysis.LocalQuestions(), explanation.Questions)
	assert.Equal(t, []string{"extraction/model_chain_failed"}, ts.recorder.fallbacks)
	assertExplanationSafe(t, explanation)
}

func TestExplainerService_Explain_SanitizesUnsafeContent(t *testing.T) {
	ts := newTestService(t)
	ts.client.onPhase("full-a", extractionSystemInstruction).
		Return(extractionJSON(t, "Pathology", "This confirms malignancy. The report describes a tissue sample."), nil)

	explanation, err := ts.service.Explain(context.Background(), &domain.AnalysisRequest{Text: "Biopsy specimen"})

	require.NoError(t, err)
	assert.Equal(t, "The report describes a tissue sample.", explanation.Summary)
	assert.Equal(t, domain.ReportTypePathology, explanation.ReportType)
	assertExplanationSafe(t, explanation)
}

func TestExplainerService_Explain_CapsDefinitionTerms(t *testing.T) {
	ts := newTestService(t)
	candidates := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		candidates = append(candidates, string(rune('a'+i))+"-term")
	}
	ts.client.onPhase("full-a", extractionSystemInstruction).
		Return(extractionJSON(t, "Lab", "The report lists values.", candidates...), nil)
	ts.client.onPhase("full-a", definitionSystemInstruction).Return(`{"definitions":[]}`, nil)

	_, err := ts.service.Explain(context.Background(), &domain.AnalysisRequest{Text: "lab values"})
	require.NoError(t, err)

	var definitionPrompt string
	for _, call := range ts.client.Calls {
		if call.Arguments.String(2) == definitionSystemInstruction {
			definitionPrompt = call.Arguments.String(3)
		}
	}
	assert.Contains(t, definitionPrompt, "o-term")
	assert.NotContains(t, definitionPrompt, "p-term")
}

func TestExplainerService_ExplainLocal(t *testing.T) {
	ts := newTestService(t)

	explanation := ts.service.ExplainLocal(&domain.AnalysisRequest{Text: ctReport})

	assert.Equal(t, domain.SourceLocal, explanation.Source)
	assert.NotEmpty(t, explanation.Summary)
	assertExplanationSafe(t, explanation)
	ts.client.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	assert.NotNil(t, ts.service.ExplainLocal(nil))
}

func TestDedupeCandidates(t *testing.T) {
	in := []termCandidate{{Term: "Nodule"}, {Term: " nodule "}, {Term: ""}, {Term: "Cyst"}, {Term: "Mass"}}
	out := dedupeCandidates(in, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "Nodule", out[0].Term)
	assert.Equal(t, "Cyst", out[1].Term)
}

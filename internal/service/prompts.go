package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const previewSystemInstruction = `You are a medical document analyzer.
Goal: identify the report type, the header sections, and list ALL medical terms found.
Output STRICT JSON only, in exactly this shape:
{
  "reportType": "lab" | "imaging" | "discharge" | "pathology" | "general",
  "detectedSections": ["Section Name 1", "Section Name 2"],
  "detectedTerms": [
    { "term": "Term1", "category": "lab" | "imaging" | "condition" | "medication" | "other" }
  ],
  "previewTerm": { "term": "Term1", "definition": "Simple one sentence definition", "category": "..." }
}
Select exactly ONE term as "previewTerm" and define it in one general, educational sentence.
Do NOT define the other detectedTerms, just list them.
Never describe what the reader has, needs or should do.`

const extractionSystemInstruction = `You are a medical literacy assistant. Explain this report in plain English.
Output STRICT JSON only, in exactly this shape:
{
  "reportType": "short report type label, e.g. CT Chest or Complete Blood Count",
  "summary": "2-3 sentence overall summary of what the report states",
  "key_findings": [
    { "finding": "what the report notes", "modifier": "size, location or comparison if stated", "implication": "neutral, general meaning of the term" }
  ],
  "sections": [
    { "originalTitle": "Findings", "summary": "Plain language explanation of this section" }
  ],
  "termCandidates": [
    { "term": "Term", "section": "Findings", "context": "the sentence the term appears in" }
  ],
  "disclaimer": "Standard educational disclaimer."
}
RULES:
1. Attribute every finding to the report: "the report states", "the report describes", "the report notes".
2. Never write second-person claims such as "you have" or "you should".
3. Never write confirmations such as "this confirms" or "this indicates".
4. No diagnosis, prognosis, survival, certainty or treatment advice.
5. Do NOT define the term candidates. Do NOT generate questions.
6. Tone: neutral, educational, calm.`

const definitionSystemInstruction = `You are a medical dictionary for patients.
For each term, write a general educational definition. Do not refer to any patient or report.
Then assess your own definition: if it contains a diagnosis, prognosis or treatment directive,
set "allowed" to false and offer a neutral "rewrite"; otherwise set "allowed" to true and "rewrite" to null.
Output STRICT JSON only, in exactly this shape:
{
  "definitions": [
    {
      "term": "Term",
      "definition": "One or two plain sentences.",
      "category": "lab" | "imaging" | "condition" | "medication" | "anatomy" | "other",
      "safetyCheck": { "allowed": true, "rewrite": null }
    }
  ]
}`

const imageOnlyPrompt = "The report is provided as the attached pages."

// truncateRunes shortens s to at most n runes without splitting a character. n <= 0 means
// no limit.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func reportBody(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return imageOnlyPrompt
	}
	return truncateRunes(text, maxChars)
}

func buildPreviewPrompt(text string, maxChars int) string {
	return "Analyze this text structure: \n\n" + reportBody(text, maxChars)
}

func buildExtractionPrompt(text string, maxChars int) string {
	return "Explain this full medical report: \n\n" + reportBody(text, maxChars)
}

func buildDefinitionPrompt(candidates []termCandidate) (string, error) {
	type item struct {
		Term    string `json:"term"`
		Context string `json:"context,omitempty"`
	}
	items := make([]item, len(candidates))
	for i, c := range candidates {
		items[i] = item{Term: c.Term, Context: c.Context}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to marshal term candidates: %w", err)
	}
	return "Define these terms: \n\n" + string(payload), nil
}

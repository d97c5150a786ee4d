package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/medreport-explainer/internal/domain"
)

// Response contracts for each remote phase. A response that fails to decode or validate is
// treated like any other transient model failure.

type detectedTerm struct {
	Term     string `json:"term"`
	Category string `json:"category"`
}

type previewResponse struct {
	ReportType       string                 `json:"reportType"`
	DetectedSections []string               `json:"detectedSections"`
	DetectedTerms    []detectedTerm         `json:"detectedTerms"`
	PreviewTerm      *domain.TermDefinition `json:"previewTerm"`
}

func (r *previewResponse) validate() error {
	if strings.TrimSpace(r.ReportType) == "" {
		return errors.New("reportType is required")
	}
	if r.DetectedSections == nil {
		return errors.New("detectedSections is required")
	}
	if r.DetectedTerms == nil {
		return errors.New("detectedTerms is required")
	}
	for i, t := range r.DetectedTerms {
		if strings.TrimSpace(t.Term) == "" {
			return fmt.Errorf("detectedTerms[%d].term is empty", i)
		}
	}
	if r.PreviewTerm != nil {
		if strings.TrimSpace(r.PreviewTerm.Term) == "" || strings.TrimSpace(r.PreviewTerm.Definition) == "" {
			return errors.New("previewTerm requires term and definition")
		}
	}
	return nil
}

type termCandidate struct {
	Term    string `json:"term"`
	Section string `json:"section"`
	Context string `json:"context"`
}

type extractionResponse struct {
	ReportType     string                      `json:"reportType"`
	Summary        string                      `json:"summary"`
	KeyFindings    []domain.KeyFinding         `json:"key_findings"`
	Sections       []domain.ExplanationSection `json:"sections"`
	TermCandidates []termCandidate             `json:"termCandidates"`
	Disclaimer     string                      `json:"disclaimer"`
}

func (r *extractionResponse) validate() error {
	if strings.TrimSpace(r.ReportType) == "" {
		return errors.New("reportType is required")
	}
	if strings.TrimSpace(r.Summary) == "" {
		return errors.New("summary is required")
	}
	if r.Sections == nil {
		return errors.New("sections is required")
	}
	for i, s := range r.Sections {
		if strings.TrimSpace(s.OriginalTitle) == "" || strings.TrimSpace(s.Summary) == "" {
			return fmt.Errorf("sections[%d] requires originalTitle and summary", i)
		}
	}
	for i, k := range r.KeyFindings {
		if strings.TrimSpace(k.Finding) == "" {
			return fmt.Errorf("key_findings[%d].finding is empty", i)
		}
	}
	return nil
}

type safetyCheck struct {
	Allowed bool    `json:"allowed"`
	Rewrite *string `json:"rewrite"`
}

type definitionItem struct {
	Term        string       `json:"term"`
	Definition  string       `json:"definition"`
	Category    string       `json:"category"`
	SafetyCheck *safetyCheck `json:"safetyCheck"`
}

// corrected applies the service's own self-assessment: a flagged definition is replaced by
// its rewrite when one is offered, and kept otherwise.
func (d definitionItem) corrected() string {
	if d.SafetyCheck != nil && !d.SafetyCheck.Allowed && d.SafetyCheck.Rewrite != nil {
		if rewrite := strings.TrimSpace(*d.SafetyCheck.Rewrite); rewrite != "" {
			return rewrite
		}
	}
	return d.Definition
}

type definitionResponse struct {
	Definitions []definitionItem `json:"definitions"`
}

func (r *definitionResponse) validate() error {
	if r.Definitions == nil {
		return errors.New("definitions is required")
	}
	for i, d := range r.Definitions {
		if strings.TrimSpace(d.Term) == "" || strings.TrimSpace(d.Definition) == "" {
			return fmt.Errorf("definitions[%d] requires term and definition", i)
		}
		if d.SafetyCheck == nil {
			return fmt.Errorf("definitions[%d].safetyCheck is required", i)
		}
	}
	return nil
}

type validator interface {
	validate() error
}

// decodeInto returns a decode function for ModelInvoker. Each call decodes into a fresh
// value and only stores it in dst once it validates, so a rejected attempt never leaks
// fields into the next one.
func decodeInto[T any, PT interface {
	*T
	validator
}](dst *T) func(string) error {
	return func(raw string) error {
		var v T
		if err := json.Unmarshal([]byte(stripCodeFence(raw)), PT(&v)); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		if err := PT(&v).validate(); err != nil {
			return err
		}
		*dst = v
		return nil
	}
}

// stripCodeFence removes a surrounding markdown code fence some models add despite a JSON
// response type.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func isSchemaMismatch(err error) bool {
	return errors.Is(err, domain.ErrSchemaMismatch)
}

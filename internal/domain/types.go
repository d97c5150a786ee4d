// Package domain contains the core data contracts for turning medical report text into
// patient-safe, plain-language explanations.
//
// Every value in this package is a plain serializable structure. Results are built once per
// analysis request and never mutated after being handed to a caller; re-analysis produces a
// new value.
package domain

import (
	"encoding/base64"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ReportType is the coarse category of a medical document. It selects which fixed
// question set applies to an explanation.
type ReportType string

const (
	ReportTypeLab       ReportType = "lab"
	ReportTypeImaging   ReportType = "imaging"
	ReportTypeDischarge ReportType = "discharge"
	ReportTypePathology ReportType = "pathology"
	ReportTypeGeneral   ReportType = "general"
)

// AllReportTypes lists every report type in declaration order.
var AllReportTypes = []ReportType{
	ReportTypeLab,
	ReportTypeImaging,
	ReportTypeDischarge,
	ReportTypePathology,
	ReportTypeGeneral,
}

// IsValid reports whether r is one of the closed set of report types.
func (r ReportType) IsValid() bool {
	for _, t := range AllReportTypes {
		if r == t {
			return true
		}
	}
	return false
}

// NormalizeReportType maps a free-form label such as "CT Chest" or "Blood panel" onto the
// closed ReportType set. Unknown labels map to ReportTypeGeneral.
func NormalizeReportType(label string) ReportType {
	lower := strings.ToLower(strings.TrimSpace(label))
	if ReportType(lower).IsValid() {
		return ReportType(lower)
	}
	switch {
	case containsAny(lower, "image", "imaging", "scan", "ray", "xray", "mri", "ct", "ultrasound"):
		return ReportTypeImaging
	case containsAny(lower, "path", "biopsy", "tissue", "cytology"):
		return ReportTypePathology
	case containsAny(lower, "lab", "blood", "urine", "panel"):
		return ReportTypeLab
	case containsAny(lower, "discharge", "hospital", "admission"):
		return ReportTypeDischarge
	default:
		return ReportTypeGeneral
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, k := range keywords {
		if ContainsKeyword(s, k) {
			return true
		}
	}
	return false
}

// shortKeywordLen is the longest keyword that must start at a word boundary, so that "ct"
// does not match "electrolyte" nor "ray" match "array".
const shortKeywordLen = 3

// ContainsKeyword reports whether the lowercased label contains keyword. Keywords of up to
// three letters only match at the start of a word; longer ones match anywhere.
func ContainsKeyword(label, keyword string) bool {
	if len(keyword) > shortKeywordLen {
		return strings.Contains(label, keyword)
	}
	for from := 0; from <= len(label)-len(keyword); {
		i := strings.Index(label[from:], keyword)
		if i < 0 {
			return false
		}
		i += from
		if i == 0 {
			return true
		}
		prev, _ := utf8.DecodeLastRuneInString(label[:i])
		if !unicode.IsLetter(prev) && !unicode.IsDigit(prev) {
			return true
		}
		from = i + 1
	}
	return false
}

// ConfidenceBand buckets a classifier confidence score.
type ConfidenceBand string

const (
	ConfidenceLow    ConfidenceBand = "low"
	ConfidenceMedium ConfidenceBand = "medium"
	ConfidenceHigh   ConfidenceBand = "high"
)

// ReportTypeResult is the output of the keyword classifier.
type ReportTypeResult struct {
	Type       ReportType     `json:"type"`
	Confidence float64        `json:"confidence"`
	Band       ConfidenceBand `json:"band"`
	Reason     string         `json:"reason"`
}

// Section is a titled span of the source text before explanation.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ExplanationSection is the plain-language summary of one report section.
type ExplanationSection struct {
	OriginalTitle string `json:"originalTitle"`
	Summary       string `json:"summary"`
}

// TermDefinition is a glossary entry. Terms are unique case-insensitively within one glossary.
type TermDefinition struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
	Category   string `json:"category"`
}

// KeyFinding is a notable statement from the report, always attributed to the report.
type KeyFinding struct {
	Finding     string `json:"finding"`
	Modifier    string `json:"modifier,omitempty"`
	Implication string `json:"implication,omitempty"`
}

// QuestionPrompt is a suggested question for the patient's clinician. Questions come from a
// fixed table and are never generated remotely.
type QuestionPrompt struct {
	Question string `json:"question"`
	Context  string `json:"context"`
}

// ExplanationSource records which path produced an explanation.
type ExplanationSource string

const (
	SourceRemote ExplanationSource = "remote"
	SourceLocal  ExplanationSource = "local"
)

// FullExplanation is the complete patient-facing explanation of a report.
type FullExplanation struct {
	ReportType  ReportType           `json:"reportType"`
	ReportLabel string               `json:"reportLabel,omitempty"`
	Summary     string               `json:"summary"`
	KeyFindings []KeyFinding         `json:"key_findings,omitempty"`
	Sections    []ExplanationSection `json:"sections"`
	Glossary    []TermDefinition     `json:"glossary"`
	Questions   []QuestionPrompt     `json:"questions"`
	Disclaimer  string               `json:"disclaimer"`
	Source      ExplanationSource    `json:"source"`
}

// Clone returns a deep copy so callers can derive a new explanation without touching one
// that has already been returned.
func (e *FullExplanation) Clone() *FullExplanation {
	if e == nil {
		return nil
	}
	out := *e
	out.KeyFindings = slices.Clone(e.KeyFindings)
	out.Sections = slices.Clone(e.Sections)
	out.Glossary = slices.Clone(e.Glossary)
	out.Questions = slices.Clone(e.Questions)
	return &out
}

// PreviewData is the lightweight structure summary shown before the full explanation.
type PreviewData struct {
	ReportType         ReportType      `json:"reportType"`
	DetectedSections   []string        `json:"detectedSections"`
	DetectedTermsCount int             `json:"detectedTermsCount"`
	PreviewTerm        *TermDefinition `json:"previewTerm"`
	IsLocked           bool            `json:"isLocked"`
	Degraded           bool            `json:"degraded,omitempty"`
}

// Clone returns a deep copy of the preview.
func (p *PreviewData) Clone() *PreviewData {
	if p == nil {
		return nil
	}
	out := *p
	out.DetectedSections = slices.Clone(p.DetectedSections)
	if p.PreviewTerm != nil {
		term := *p.PreviewTerm
		out.PreviewTerm = &term
	}
	return &out
}

// AnalysisRequest carries the opaque document inputs of one analysis. Any combination of
// text, page images and a whole-document payload may be supplied.
type AnalysisRequest struct {
	Text     string
	Images   [][]byte
	Document []byte
}

// NewAnalysisRequest builds a request from base64 encoded images and document. Each payload
// may be raw standard base64 or a data URL.
func NewAnalysisRequest(text string, images []string, document string) (*AnalysisRequest, error) {
	req := &AnalysisRequest{Text: text}
	for i, img := range images {
		data, err := DecodeBase64(img)
		if err != nil {
			return nil, NewValidationError(fmt.Sprintf("images[%d]", i), "invalid base64 payload", nil)
		}
		if len(data) > 0 {
			req.Images = append(req.Images, data)
		}
	}
	if document != "" {
		data, err := DecodeBase64(document)
		if err != nil {
			return nil, NewValidationError("document", "invalid base64 payload", nil)
		}
		req.Document = data
	}
	return req, nil
}

// DecodeBase64 decodes padded or unpadded standard base64, stripping a data URL prefix.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	if s == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return base64.RawStdEncoding.DecodeString(s)
	}
	return data, nil
}

// HasContent reports whether the request carries anything to analyze.
func (r *AnalysisRequest) HasContent() bool {
	if r == nil {
		return false
	}
	return strings.TrimSpace(r.Text) != "" || len(r.Images) > 0 || len(r.Document) > 0
}

// Attachments converts the binary inputs into model attachments. Images come first in page
// order, followed by the document payload.
func (r *AnalysisRequest) Attachments() []Attachment {
	if r == nil {
		return nil
	}
	out := make([]Attachment, 0, len(r.Images)+1)
	for i, img := range r.Images {
		if len(img) == 0 {
			continue
		}
		out = append(out, Attachment{Name: fmt.Sprintf("page-%d", i+1), Data: img})
	}
	if len(r.Document) > 0 {
		out = append(out, Attachment{Name: "document", Data: r.Document})
	}
	return out
}

// Attachment is a binary payload passed through unmodified to the text-completion service.
// MIMEType may be left empty; the service adapter detects it from the content.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// ModelPrompt is one instruction/prompt pair sent through the model chain.
type ModelPrompt struct {
	System      string
	User        string
	Attachments []Attachment
}

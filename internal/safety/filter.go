// Package safety implements the deterministic claim filter that every patient-facing field
// passes through before it leaves the service.
//
// The filter blocks speech acts rather than vocabulary: second-person diagnoses, first-person
// confirmations, prognosis or certainty statements, and treatment directives. Unsafe sentences
// are dropped silently; a field is never blanked out.
package safety

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/medreport-explainer/internal/domain"
)

// Category groups claim patterns by the kind of statement they block.
type Category string

const (
	CategoryDiagnostic Category = "diagnostic"
	CategoryPrognostic Category = "prognostic"
	CategoryTreatment  Category = "treatment"
)

// Granularity controls how much of a field is removed when a claim is found.
type Granularity string

const (
	// GranularitySentence drops only the offending sentence-like units.
	GranularitySentence Granularity = "sentence"
	// GranularityField replaces the whole field with the fallback sentence.
	GranularityField Granularity = "field"
)

const (
	// DefaultFallbackSentence replaces a non-empty field whose every unit was unsafe.
	DefaultFallbackSentence = "This term is mentioned in the report."

	// DefaultDisclaimer is substituted when an explanation arrives without one.
	DefaultDisclaimer = "This explanation is for educational purposes only and does not constitute medical advice."
)

// DefaultDiagnosticPatterns match second-person diagnoses and first-person confirmations.
var DefaultDiagnosticPatterns = []string{
	`(?i)\b(you|your)\b.*\b(have|has|need|must|should|require|start|stop)\b`,
	`(?i)\bthis (confirms|indicates|proves|means)\b`,
}

// DefaultPrognosticPatterns match survival and certainty claims.
var DefaultPrognosticPatterns = []string{
	`(?i)\bprognosis\b`,
	`(?i)\bsurvival\b`,
	`(?i)\blife expectancy\b`,
	`(?i)\bterminal\b`,
	`(?i)\bcure\b`,
	`(?i)\bdefinitely\b`,
	`(?i)\b100\s?%`,
}

// DefaultTreatmentPatterns match treatment directives.
var DefaultTreatmentPatterns = []string{
	`(?i)\b(start|stop|begin|discontinue)\s+taking\b`,
	`(?i)\bprescrib(e|ed|ing)\b`,
	`(?i)\bsurgery\s+is\s+(required|needed|necessary)\b`,
}

// sentencePattern splits text into units that keep their trailing delimiters.
var sentencePattern = regexp.MustCompile(`[^.!?\n]+[.!?\n]*`)

// Policy is the configurable part of the filter. Empty pattern lists select the defaults.
type Policy struct {
	Granularity        Granularity
	FallbackSentence   string
	DefaultDisclaimer  string
	DiagnosticPatterns []string
	PrognosticPatterns []string
	TreatmentPatterns  []string
}

// PolicyFromConfig converts the safety configuration section into a Policy.
func PolicyFromConfig(cfg domain.SafetyConfig) Policy {
	return Policy{
		Granularity:        Granularity(strings.ToLower(cfg.Granularity)),
		FallbackSentence:   cfg.FallbackSentence,
		DefaultDisclaimer:  cfg.DefaultDisclaimer,
		DiagnosticPatterns: cfg.DiagnosticPatterns,
		PrognosticPatterns: cfg.PrognosticPatterns,
		TreatmentPatterns:  cfg.TreatmentPatterns,
	}
}

type rule struct {
	category Category
	re       *regexp.Regexp
}

// Filter is safe for concurrent use; it holds only compiled, read-only patterns.
type Filter struct {
	rules       []rule
	granularity Granularity
	fallback    string
	disclaimer  string
	observer    func(Category)
}

// Option customizes a Filter.
type Option func(*Filter)

// WithObserver registers a callback invoked once for every dropped unit, with the category
// of the first matching pattern.
func WithObserver(fn func(Category)) Option {
	return func(f *Filter) {
		f.observer = fn
	}
}

// NewFilter compiles policy into a Filter.
func NewFilter(policy Policy, opts ...Option) (*Filter, error) {
	f := &Filter{
		granularity: policy.Granularity,
		fallback:    policy.FallbackSentence,
		disclaimer:  policy.DefaultDisclaimer,
	}
	if f.granularity == "" {
		f.granularity = GranularitySentence
	}
	if f.granularity != GranularitySentence && f.granularity != GranularityField {
		return nil, fmt.Errorf("unknown safety granularity %q", policy.Granularity)
	}
	if f.fallback == "" {
		f.fallback = DefaultFallbackSentence
	}
	if f.disclaimer == "" {
		f.disclaimer = DefaultDisclaimer
	}

	groups := []struct {
		category Category
		patterns []string
		defaults []string
	}{
		{CategoryDiagnostic, policy.DiagnosticPatterns, DefaultDiagnosticPatterns},
		{CategoryPrognostic, policy.PrognosticPatterns, DefaultPrognosticPatterns},
		{CategoryTreatment, policy.TreatmentPatterns, DefaultTreatmentPatterns},
	}
	for _, g := range groups {
		patterns := g.patterns
		if len(patterns) == 0 {
			patterns = g.defaults
		}
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("compile %s pattern %q: %w", g.category, p, err)
			}
			f.rules = append(f.rules, rule{category: g.category, re: re})
		}
	}

	if f.fallbackUnsafe() {
		return nil, fmt.Errorf("fallback sentence %q is itself unsafe", f.fallback)
	}

	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// DefaultFilter returns a Filter with the built-in policy.
func DefaultFilter() *Filter {
	f, err := NewFilter(Policy{})
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Filter) fallbackUnsafe() bool {
	_, unsafe := f.match(f.fallback)
	return unsafe
}

func (f *Filter) match(text string) (Category, bool) {
	for _, r := range f.rules {
		if r.re.MatchString(text) {
			return r.category, true
		}
	}
	return "", false
}

// IsSafe reports whether no claim pattern matches anywhere in text.
func (f *Filter) IsSafe(text string) bool {
	if text == "" {
		return true
	}
	_, unsafe := f.match(text)
	return !unsafe
}

// Sanitize removes unsafe content from a single field. Safe units are kept verbatim and in
// order. A non-empty field that loses every unit becomes the fallback sentence.
func (f *Filter) Sanitize(text string) string {
	if text == "" {
		return text
	}

	if f.granularity == GranularityField {
		if category, unsafe := f.match(text); unsafe {
			f.observe(category)
			return f.fallback
		}
		return strings.TrimSpace(text)
	}

	units := sentencePattern.FindAllString(text, -1)
	if len(units) == 0 {
		units = []string{text}
	}

	var kept []string
	for _, u := range units {
		if category, unsafe := f.match(u); unsafe {
			f.observe(category)
			continue
		}
		kept = append(kept, u)
	}
	kept = f.dropSpanningClaims(kept)

	out := strings.TrimSpace(strings.Join(kept, ""))
	if _, unsafe := f.match(out); unsafe {
		return f.fallback
	}
	if len(kept) == 0 && strings.TrimSpace(text) != "" {
		return f.fallback
	}
	return out
}

// dropSpanningClaims removes kept units that are individually safe but form a claim once
// rejoined, such as a directive wrapped across a line break. Every unit overlapping the
// earliest match is dropped until the joined text no longer matches.
func (f *Filter) dropSpanningClaims(units []string) []string {
	for len(units) > 0 {
		joined := strings.Join(units, "")
		start, end, category, found := -1, -1, Category(""), false
		for _, r := range f.rules {
			loc := r.re.FindStringIndex(joined)
			if loc != nil && (!found || loc[0] < start) {
				start, end, category, found = loc[0], loc[1], r.category, true
			}
		}
		if !found {
			return units
		}
		f.observe(category)

		remaining := make([]string, 0, len(units))
		offset := 0
		for _, u := range units {
			uStart, uEnd := offset, offset+len(u)
			offset = uEnd
			if uStart < end && uEnd > start {
				continue
			}
			remaining = append(remaining, u)
		}
		if len(remaining) == len(units) {
			return nil
		}
		units = remaining
	}
	return units
}

func (f *Filter) observe(c Category) {
	if f.observer != nil {
		f.observer(c)
	}
}

// SanitizeExplanation returns a sanitized copy of e. The input is not modified.
func (f *Filter) SanitizeExplanation(e *domain.FullExplanation) *domain.FullExplanation {
	if e == nil {
		return nil
	}
	out := e.Clone()

	out.Summary = f.Sanitize(out.Summary)
	for i := range out.Sections {
		out.Sections[i].Summary = f.Sanitize(out.Sections[i].Summary)
	}
	for i := range out.Glossary {
		out.Glossary[i].Definition = f.Sanitize(out.Glossary[i].Definition)
	}
	for i := range out.Questions {
		out.Questions[i].Context = f.Sanitize(out.Questions[i].Context)
	}
	for i := range out.KeyFindings {
		out.KeyFindings[i].Finding = f.Sanitize(out.KeyFindings[i].Finding)
		out.KeyFindings[i].Modifier = f.Sanitize(out.KeyFindings[i].Modifier)
		out.KeyFindings[i].Implication = f.Sanitize(out.KeyFindings[i].Implication)
	}

	out.Disclaimer = f.Sanitize(out.Disclaimer)
	if strings.TrimSpace(out.Disclaimer) == "" || out.Disclaimer == f.fallback {
		out.Disclaimer = f.disclaimer
	}
	return out
}

// SanitizePreview returns a sanitized copy of p.
func (f *Filter) SanitizePreview(p *domain.PreviewData) *domain.PreviewData {
	if p == nil {
		return nil
	}
	out := p.Clone()
	if out.PreviewTerm != nil {
		out.PreviewTerm.Definition = f.Sanitize(out.PreviewTerm.Definition)
	}
	return out
}

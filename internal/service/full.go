package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/medreport-explainer/internal/analysis"
	"github.com/medreport-explainer/internal/domain"
	"github.com/medreport-explainer/internal/safety"
)

const defaultMaxDefinitionTerms = 15

// FullAnalyzer produces the complete explanation in two remote phases: extraction of the
// summary, sections and term candidates, then a batched definition call for the candidates
// that are not already cached. Questions are always taken from the fixed table.
type FullAnalyzer struct {
	extraction *ModelInvoker
	definition *ModelInvoker
	cache      domain.DefinitionCache
	filter     *safety.Filter
	config     domain.AnalysisConfig
	logger     *logrus.Logger
	recorder   Recorder
}

// NewFullAnalyzer creates a full analyzer over the full model chain. cache may be nil.
func NewFullAnalyzer(invoker *ModelInvoker, cache domain.DefinitionCache, filter *safety.Filter, config domain.AnalysisConfig, logger *logrus.Logger) *FullAnalyzer {
	if config.MaxDefinitionTerms <= 0 {
		config.MaxDefinitionTerms = defaultMaxDefinitionTerms
	}
	return &FullAnalyzer{
		extraction: invoker.WithRecorder(nil, CallSiteExtraction),
		definition: invoker.WithRecorder(nil, CallSiteDefinition),
		cache:      cache,
		filter:     filter,
		config:     config,
		logger:     logger,
		recorder:   nopRecorder{},
	}
}

// SetRecorder installs an event recorder on the analyzer and both phase invokers.
func (a *FullAnalyzer) SetRecorder(recorder Recorder) {
	if recorder == nil {
		return
	}
	a.recorder = recorder
	a.extraction = a.extraction.WithRecorder(recorder, CallSiteExtraction)
	a.definition = a.definition.WithRecorder(recorder, CallSiteDefinition)
}

// Analyze returns the sanitized explanation of req. Authentication failures in either phase
// are returned as errors. Any other extraction failure falls back to the local explanation;
// a definition failure leaves only the cached glossary entries.
func (a *FullAnalyzer) Analyze(ctx context.Context, req *domain.AnalysisRequest) (*domain.FullExplanation, error) {
	prompt := domain.ModelPrompt{
		System:      extractionSystemInstruction,
		User:        buildExtractionPrompt(req.Text, a.config.FullMaxChars),
		Attachments: req.Attachments(),
	}

	var resp extractionResponse
	model, err := a.extraction.Invoke(ctx, prompt, decodeInto(&resp))
	if err != nil {
		if domain.IsAuthError(err) {
			return nil, err
		}
		a.logger.WithError(err).Warn("Extraction failed, falling back to local explanation")
		a.recorder.Fallback(CallSiteExtraction, "model_chain_failed")
		return a.AnalyzeLocal(req), nil
	}

	candidates := dedupeCandidates(resp.TermCandidates, a.config.MaxDefinitionTerms)
	a.logger.WithFields(logrus.Fields{
		"model":      model,
		"label":      resp.ReportType,
		"sections":   len(resp.Sections),
		"candidates": len(candidates),
	}).Debug("Extraction completed")

	glossary, err := a.buildGlossary(ctx, candidates)
	if err != nil {
		return nil, err
	}

	label := strings.TrimSpace(resp.ReportType)
	explanation := &domain.FullExplanation{
		ReportType:  domain.NormalizeReportType(label),
		ReportLabel: label,
		Summary:     resp.Summary,
		KeyFindings: resp.KeyFindings,
		Sections:    resp.Sections,
		Glossary:    glossary,
		Questions:   analysis.QuestionsFor(label),
		Disclaimer:  resp.Disclaimer,
		Source:      domain.SourceRemote,
	}
	return a.filter.SanitizeExplanation(explanation), nil
}

// AnalyzeLocal builds the explanation from the local dictionary only.
func (a *FullAnalyzer) AnalyzeLocal(req *domain.AnalysisRequest) *domain.FullExplanation {
	return a.filter.SanitizeExplanation(analysis.GenerateLocalExplanation(req.Text))
}

// buildGlossary resolves definitions for candidates, consulting the cache first. Entries
// follow candidate order; definitions returned for terms that were not requested fill any
// remaining room up to the cap.
func (a *FullAnalyzer) buildGlossary(ctx context.Context, candidates []termCandidate) ([]domain.TermDefinition, error) {
	resolved := make(map[string]domain.TermDefinition, len(candidates))
	requested := make(map[string]bool, len(candidates))
	var misses []termCandidate

	for _, c := range candidates {
		key := cacheKey(c.Term)
		requested[key] = true
		if a.cache != nil {
			if def, ok := a.cache.Get(ctx, c.Term); ok {
				a.recorder.CacheLookup(true)
				resolved[key] = *def
				continue
			}
			a.recorder.CacheLookup(false)
		}
		misses = append(misses, c)
	}

	var extras []domain.TermDefinition
	if len(misses) > 0 {
		defs, err := a.fetchDefinitions(ctx, misses)
		if err != nil {
			if domain.IsAuthError(err) {
				return nil, err
			}
			a.logger.WithError(err).WithField("terms", len(misses)).Warn("Definition phase failed, glossary limited to cached entries")
			a.recorder.Fallback(CallSiteDefinition, "model_chain_failed")
		}
		seen := make(map[string]bool, len(defs))
		for _, def := range defs {
			key := cacheKey(def.Term)
			if seen[key] {
				continue
			}
			seen[key] = true
			if a.cache != nil {
				a.cache.Set(ctx, def.Term, &def)
			}
			if requested[key] {
				if _, ok := resolved[key]; !ok {
					resolved[key] = def
				}
				continue
			}
			extras = append(extras, def)
		}
	}

	glossary := make([]domain.TermDefinition, 0, len(candidates))
	for _, c := range candidates {
		if def, ok := resolved[cacheKey(c.Term)]; ok {
			glossary = append(glossary, def)
		}
	}
	for _, def := range extras {
		if len(glossary) >= a.config.MaxDefinitionTerms {
			break
		}
		glossary = append(glossary, def)
	}
	return glossary, nil
}

func (a *FullAnalyzer) fetchDefinitions(ctx context.Context, misses []termCandidate) ([]domain.TermDefinition, error) {
	user, err := buildDefinitionPrompt(misses)
	if err != nil {
		return nil, err
	}

	var resp definitionResponse
	if _, err := a.definition.Invoke(ctx, domain.ModelPrompt{System: definitionSystemInstruction, User: user}, decodeInto(&resp)); err != nil {
		return nil, err
	}

	defs := make([]domain.TermDefinition, 0, len(resp.Definitions))
	for _, item := range resp.Definitions {
		definition := item.corrected()
		if item.SafetyCheck != nil && !item.SafetyCheck.Allowed {
			a.logger.WithField("term", item.Term).Debug("Definition flagged by self-assessment")
		}
		category := strings.TrimSpace(item.Category)
		if category == "" {
			category = "general"
		}
		defs = append(defs, domain.TermDefinition{
			Term:       strings.TrimSpace(item.Term),
			Definition: strings.TrimSpace(definition),
			Category:   category,
		})
	}
	return defs, nil
}

// dedupeCandidates drops blank and case-insensitively repeated terms and keeps at most limit.
func dedupeCandidates(in []termCandidate, limit int) []termCandidate {
	seen := make(map[string]bool, len(in))
	out := make([]termCandidate, 0, len(in))
	for _, c := range in {
		c.Term = strings.TrimSpace(c.Term)
		key := cacheKey(c.Term)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out
}

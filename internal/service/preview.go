package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/medreport-explainer/internal/domain"
	"github.com/medreport-explainer/internal/safety"
)

// Call sites reported to the Recorder.
const (
	CallSitePreview    = "preview"
	CallSiteExtraction = "extraction"
	CallSiteDefinition = "definition"
)

// PreviewAnalyzer produces the lightweight structure preview of a report.
type PreviewAnalyzer struct {
	invoker  *ModelInvoker
	filter   *safety.Filter
	config   domain.AnalysisConfig
	logger   *logrus.Logger
	recorder Recorder
}

// NewPreviewAnalyzer creates a preview analyzer over the preview model chain.
func NewPreviewAnalyzer(invoker *ModelInvoker, filter *safety.Filter, config domain.AnalysisConfig, logger *logrus.Logger) *PreviewAnalyzer {
	return &PreviewAnalyzer{
		invoker:  invoker,
		filter:   filter,
		config:   config,
		logger:   logger,
		recorder: nopRecorder{},
	}
}

// SetRecorder installs an event recorder on the analyzer and its invoker.
func (a *PreviewAnalyzer) SetRecorder(recorder Recorder) {
	if recorder == nil {
		return
	}
	a.recorder = recorder
	a.invoker = a.invoker.WithRecorder(recorder, CallSitePreview)
}

// Analyze returns a preview of req. Authentication failures are returned as errors; any
// other failure yields a degraded, still-locked preview so the caller can proceed.
func (a *PreviewAnalyzer) Analyze(ctx context.Context, req *domain.AnalysisRequest) (*domain.PreviewData, error) {
	prompt := domain.ModelPrompt{
		System:      previewSystemInstruction,
		User:        buildPreviewPrompt(req.Text, a.config.PreviewMaxChars),
		Attachments: req.Attachments(),
	}

	var resp previewResponse
	model, err := a.invoker.Invoke(ctx, prompt, decodeInto(&resp))
	if err != nil {
		if domain.IsAuthError(err) {
			return nil, err
		}
		a.logger.WithError(err).Warn("Preview analysis failed, returning degraded preview")
		a.recorder.Fallback(CallSitePreview, "model_chain_failed")
		return degradedPreview(), nil
	}

	a.logger.WithFields(logrus.Fields{
		"model":       model,
		"report_type": resp.ReportType,
		"sections":    len(resp.DetectedSections),
		"terms":       len(resp.DetectedTerms),
	}).Debug("Preview analysis completed")

	preview := &domain.PreviewData{
		ReportType:         domain.NormalizeReportType(resp.ReportType),
		DetectedSections:   cleanStrings(resp.DetectedSections),
		DetectedTermsCount: len(resp.DetectedTerms),
		IsLocked:           true,
	}
	if resp.PreviewTerm != nil {
		term := *resp.PreviewTerm
		term.Term = strings.TrimSpace(term.Term)
		if term.Category == "" {
			term.Category = "general"
		}
		preview.PreviewTerm = &term
	}
	return a.filter.SanitizePreview(preview), nil
}

func degradedPreview() *domain.PreviewData {
	return &domain.PreviewData{
		ReportType:       domain.ReportTypeGeneral,
		DetectedSections: []string{},
		IsLocked:         true,
		Degraded:         true,
	}
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

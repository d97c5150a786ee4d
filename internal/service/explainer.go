package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medreport-explainer/internal/domain"
)

// ExplainerService is the entry point used by the HTTP, MCP and CLI front ends.
type ExplainerService struct {
	preview *PreviewAnalyzer
	full    *FullAnalyzer
	logger  *logrus.Logger
}

var _ domain.Explainer = (*ExplainerService)(nil)

// NewExplainerService wires the preview and full analyzers together.
func NewExplainerService(preview *PreviewAnalyzer, full *FullAnalyzer, logger *logrus.Logger) *ExplainerService {
	return &ExplainerService{
		preview: preview,
		full:    full,
		logger:  logger,
	}
}

// SetRecorder installs recorder on both analyzers.
func (s *ExplainerService) SetRecorder(recorder Recorder) {
	s.preview.SetRecorder(recorder)
	s.full.SetRecorder(recorder)
}

// Preview analyzes the structure of a report without explaining it.
func (s *ExplainerService) Preview(ctx context.Context, req *domain.AnalysisRequest) (*domain.PreviewData, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()
	preview, err := s.preview.Analyze(ctx, req)
	if err != nil {
		s.logger.WithError(err).Error("Preview failed")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"report_type": preview.ReportType,
		"degraded":    preview.Degraded,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Preview completed")
	return preview, nil
}

// Explain produces the full explanation of a report using the remote service.
func (s *ExplainerService) Explain(ctx context.Context, req *domain.AnalysisRequest) (*domain.FullExplanation, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	start := time.Now()
	explanation, err := s.full.Analyze(ctx, req)
	if err != nil {
		s.logger.WithError(err).Error("Explanation failed")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"report_type":   explanation.ReportType,
		"source":        explanation.Source,
		"glossary_size": len(explanation.Glossary),
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("Explanation completed")
	return explanation, nil
}

// ExplainLocal produces an explanation from the local dictionary. It never fails.
func (s *ExplainerService) ExplainLocal(req *domain.AnalysisRequest) *domain.FullExplanation {
	if req == nil {
		req = &domain.AnalysisRequest{}
	}
	return s.full.AnalyzeLocal(req)
}

func validateRequest(req *domain.AnalysisRequest) error {
	if !req.HasContent() {
		return domain.NewValidationError("text", "report text, images or a document is required", nil)
	}
	return nil
}

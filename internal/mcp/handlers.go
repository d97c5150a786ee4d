package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/medreport-explainer/internal/domain"
	"github.com/medreport-explainer/internal/export"
)

// Tool names
const (
	ToolPreviewReport = "preview_report"
	ToolExplainReport = "explain_report"
)

// PreviewReportParams defines parameters for the preview_report tool
type PreviewReportParams struct {
	Text     string   `json:"text,omitempty" jsonschema:"the report text"`
	Images   []string `json:"images,omitempty" jsonschema:"base64 encoded page images in page order"`
	Document string   `json:"document,omitempty" jsonschema:"base64 encoded source document"`
}

// ExplainReportParams defines parameters for the explain_report tool
type ExplainReportParams struct {
	Text     string   `json:"text,omitempty" jsonschema:"the report text"`
	Images   []string `json:"images,omitempty" jsonschema:"base64 encoded page images in page order"`
	Document string   `json:"document,omitempty" jsonschema:"base64 encoded source document"`
	Local    bool     `json:"local,omitempty" jsonschema:"explain with the built-in dictionary only"`
	Format   string   `json:"format,omitempty" jsonschema:"json (default) or text"`
}

func (s *Server) handlePreviewReport(ctx context.Context, _ *mcp.CallToolRequest, params PreviewReportParams) (*mcp.CallToolResult, any, error) {
	start := time.Now()
	s.logger.WithField("tool", ToolPreviewReport).Info("Tool invoked")

	req, err := domain.NewAnalysisRequest(params.Text, params.Images, params.Document)
	if err != nil {
		return s.createErrorResult("Invalid parameters", err), nil, nil
	}

	preview, err := s.explainer.Preview(ctx, req)
	if err != nil {
		return s.toolFailure(ToolPreviewReport, err), nil, nil
	}

	result, err := jsonResult(preview)
	if err != nil {
		return nil, nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"tool":        ToolPreviewReport,
		"report_type": preview.ReportType,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Tool completed")
	return result, nil, nil
}

func (s *Server) handleExplainReport(ctx context.Context, _ *mcp.CallToolRequest, params ExplainReportParams) (*mcp.CallToolResult, any, error) {
	start := time.Now()
	s.logger.WithFields(logrus.Fields{"tool": ToolExplainReport, "local": params.Local}).Info("Tool invoked")

	if params.Format != "" && params.Format != "json" && params.Format != "text" {
		return s.createErrorResult("Invalid parameters", fmt.Errorf("format must be json or text, got %q", params.Format)), nil, nil
	}

	req, err := domain.NewAnalysisRequest(params.Text, params.Images, params.Document)
	if err != nil {
		return s.createErrorResult("Invalid parameters", err), nil, nil
	}
	if !req.HasContent() {
		return s.createErrorResult("Missing required parameter", errors.New("text, images or document is required")), nil, nil
	}

	var explanation *domain.FullExplanation
	if params.Local {
		explanation = s.explainer.ExplainLocal(req)
	} else {
		explanation, err = s.explainer.Explain(ctx, req)
		if err != nil {
			return s.toolFailure(ToolExplainReport, err), nil, nil
		}
	}

	var result *mcp.CallToolResult
	if params.Format == "text" {
		result = &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: export.Text(explanation)}},
		}
	} else if result, err = jsonResult(explanation); err != nil {
		return nil, nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"tool":        ToolExplainReport,
		"source":      explanation.Source,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Tool completed")
	return result, nil, nil
}

// toolFailure reports err to the client without leaking internal detail.
func (s *Server) toolFailure(tool string, err error) *mcp.CallToolResult {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		return s.createErrorResult("Invalid parameters", validation)
	case domain.IsAuthError(err):
		s.logger.WithError(err).WithField("tool", tool).Error("Text-completion service rejected the configured credential")
		return s.createErrorResult("The analysis service is misconfigured", nil)
	default:
		s.logger.WithError(err).WithField("tool", tool).Error("Tool failed")
		return s.createErrorResult("Analysis failed", nil)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

// createErrorResult creates an error result for tool responses
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}

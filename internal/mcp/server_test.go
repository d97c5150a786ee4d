package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medreport-explainer/internal/domain"
)

// MockExplainer is a mock implementation of domain.Explainer
type MockExplainer struct {
	mock.Mock
}

func (m *MockExplainer) Preview(ctx context.Context, req *domain.AnalysisRequest) (*domain.PreviewData, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PreviewData), args.Error(1)
}

func (m *MockExplainer) Explain(ctx context.Context, req *domain.AnalysisRequest) (*domain.FullExplanation, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FullExplanation), args.Error(1)
}

func (m *MockExplainer) ExplainLocal(req *domain.AnalysisRequest) *domain.FullExplanation {
	return m.Called(req).Get(0).(*domain.FullExplanation)
}

type mockConfigManager struct {
	domain.ConfigManager
	cfg *domain.Config
}

func (m *mockConfigManager) GetConfig() *domain.Config { return m.cfg }

func createMockConfig() *domain.Config {
	return &domain.Config{
		MCP: domain.MCPConfig{
			ServerName:    "medreport-explainer",
			ServerVersion: "v0.1.0",
		},
	}
}

func newTestServer(t *testing.T) (*Server, *MockExplainer) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	explainer := new(MockExplainer)
	server, err := NewServer(&mockConfigManager{cfg: createMockConfig()}, explainer, logger)
	require.NoError(t, err)
	return server, explainer
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func sampleExplanation(source domain.ExplanationSource) *domain.FullExplanation {
	return &domain.FullExplanation{
		ReportType: domain.ReportTypeLab,
		Summary:    "The panel lists blood counts.",
		Sections:   []domain.ExplanationSection{},
		Glossary:   []domain.TermDefinition{{Term: "CBC", Definition: "Complete blood count.", Category: "test"}},
		Questions:  []domain.QuestionPrompt{},
		Disclaimer: "Educational only.",
		Source:     source,
	}
}

func TestNewServer(t *testing.T) {
	server, _ := newTestServer(t)
	assert.NotNil(t, server.mcpServer)
	assert.Equal(t, "medreport-explainer", server.config.ServerName)

	_, err := NewServer(&mockConfigManager{cfg: createMockConfig()}, nil, logrus.New())
	assert.Error(t, err)
}

func TestHandlePreviewReport(t *testing.T) {
	server, explainer := newTestServer(t)
	explainer.On("Preview", mock.Anything, mock.MatchedBy(func(req *domain.AnalysisRequest) bool {
		return req.Text == "Hemoglobin 13.2 g/dL"
	})).Return(&domain.PreviewData{
		ReportType:         domain.ReportTypeLab,
		DetectedSections:   []string{"Results"},
		DetectedTermsCount: 2,
		IsLocked:           true,
	}, nil)

	result, _, err := server.handlePreviewReport(context.Background(), nil, PreviewReportParams{Text: "Hemoglobin 13.2 g/dL"})
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var preview domain.PreviewData
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &preview))
	assert.Equal(t, domain.ReportTypeLab, preview.ReportType)
	assert.Equal(t, 2, preview.DetectedTermsCount)
}

func TestHandlePreviewReport_BadImage(t *testing.T) {
	server, explainer := newTestServer(t)

	result, _, err := server.handlePreviewReport(context.Background(), nil, PreviewReportParams{Images: []string{"%%%"}})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "images[0]")
	explainer.AssertNotCalled(t, "Preview", mock.Anything, mock.Anything)
}

func TestHandleExplainReport(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		server, explainer := newTestServer(t)
		explainer.On("Explain", mock.Anything, mock.Anything).Return(sampleExplanation(domain.SourceRemote), nil)

		result, _, err := server.handleExplainReport(context.Background(), nil, ExplainReportParams{Text: "CBC"})
		require.NoError(t, err)
		assert.False(t, result.IsError)
		assert.Contains(t, resultText(t, result), `"source": "remote"`)
	})

	t.Run("text local", func(t *testing.T) {
		server, explainer := newTestServer(t)
		explainer.On("ExplainLocal", mock.Anything).Return(sampleExplanation(domain.SourceLocal))

		result, _, err := server.handleExplainReport(context.Background(), nil, ExplainReportParams{Text: "CBC", Local: true, Format: "text"})
		require.NoError(t, err)
		text := resultText(t, result)
		assert.Contains(t, text, "KEY TERMS")
		assert.Contains(t, text, "Educational only.")
		explainer.AssertNotCalled(t, "Explain", mock.Anything, mock.Anything)
	})

	t.Run("invalid format", func(t *testing.T) {
		server, _ := newTestServer(t)
		result, _, err := server.handleExplainReport(context.Background(), nil, ExplainReportParams{Text: "CBC", Format: "pdf"})
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("missing content", func(t *testing.T) {
		server, _ := newTestServer(t)
		result, _, err := server.handleExplainReport(context.Background(), nil, ExplainReportParams{Local: true})
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})
}

func TestHandleExplainReport_Failures(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"authentication", &domain.ModelError{Model: "m", StatusCode: 403, Err: domain.ErrAuthentication}, "misconfigured"},
		{"unexpected", errors.New("connection reset"), "Analysis failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, explainer := newTestServer(t)
			explainer.On("Explain", mock.Anything, mock.Anything).Return(nil, tt.err)

			result, _, err := server.handleExplainReport(context.Background(), nil, ExplainReportParams{Text: "CBC"})
			require.NoError(t, err)
			assert.True(t, result.IsError)
			text := resultText(t, result)
			assert.Contains(t, text, tt.message)
			assert.NotContains(t, text, "connection reset")
		})
	}
}

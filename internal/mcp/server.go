// Package mcp exposes the explainer as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/medreport-explainer/internal/domain"
)

const (
	defaultServerName    = "medreport-explainer"
	defaultServerVersion = "v0.1.0"
)

// Server represents the MCP tool server
type Server struct {
	config    *domain.MCPConfig
	mcpServer *mcp.Server
	explainer domain.Explainer
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance with the report tools registered.
func NewServer(configManager domain.ConfigManager, explainer domain.Explainer, logger *logrus.Logger) (*Server, error) {
	if explainer == nil {
		return nil, fmt.Errorf("explainer is required")
	}

	cfg := configManager.GetConfig().MCP
	serverInfo := &mcp.Implementation{
		Name:    cfg.ServerName,
		Version: cfg.ServerVersion,
	}
	if serverInfo.Name == "" {
		serverInfo.Name = defaultServerName
	}
	if serverInfo.Version == "" {
		serverInfo.Version = defaultServerVersion
	}

	server := &Server{
		config:    &cfg,
		mcpServer: mcp.NewServer(serverInfo, nil),
		explainer: explainer,
		logger:    logger,
	}
	server.registerTools()

	return server, nil
}

// Start serves the tools over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

// Run serves the tools over transport.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.WithField("server_name", s.config.ServerName).Info("Starting MCP server")
	if err := s.mcpServer.Run(ctx, transport); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolPreviewReport,
		Description: "Detect the type, sections and number of medical terms in a report " +
			"without explaining it. Returns a JSON preview.",
	}, s.handlePreviewReport)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolExplainReport,
		Description: "Explain a medical report in plain language: summary, key findings, " +
			"sections, a glossary of terms and questions to ask a clinician. " +
			"The explanation never diagnoses or recommends treatment.",
	}, s.handleExplainReport)

	s.logger.WithField("tool_count", 2).Debug("Registered MCP tools")
}

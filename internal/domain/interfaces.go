package domain

import (
	"context"
)

// ModelClient is the narrow contract to the remote text-completion service. Invoke returns
// the raw JSON text produced by modelID. Authentication failures must wrap ErrAuthentication.
type ModelClient interface {
	Invoke(ctx context.Context, modelID, systemInstruction, userPrompt string, attachments []Attachment) (string, error)
}

// DefinitionCache memoizes term definitions across requests. Keys are normalized terms.
type DefinitionCache interface {
	Get(ctx context.Context, term string) (*TermDefinition, bool)
	Set(ctx context.Context, term string, def *TermDefinition)
}

// Explainer produces previews and full explanations.
type Explainer interface {
	Preview(ctx context.Context, req *AnalysisRequest) (*PreviewData, error)
	Explain(ctx context.Context, req *AnalysisRequest) (*FullExplanation, error)
	ExplainLocal(req *AnalysisRequest) *FullExplanation
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetModelConfig() *ModelConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}

package external

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/medreport-explainer/internal/domain"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DefaultGeminiBaseURL is the public Generative Language API endpoint.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// authMarkers appear in error bodies the service returns for bad credentials with status 400.
var authMarkers = []string{"API_KEY", "API key not valid", "PERMISSION_DENIED", "UNAUTHENTICATED"}

// GeminiClient calls the generateContent endpoint of the Generative Language API. It
// implements domain.ModelClient. Each model identifier gets its own circuit breaker so a
// failing model is skipped quickly while the others remain available.
type GeminiClient struct {
	baseURL          string
	apiKey           string
	temperature      float64
	maxResponseBytes int64
	breakerConfig    domain.BreakerConfig

	httpClient  *http.Client
	rateLimiter *rate.Limiter
	logger      *logrus.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(config domain.ModelConfig, logger *logrus.Logger) *GeminiClient {
	if config.BaseURL == "" {
		config.BaseURL = DefaultGeminiBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.MaxResponseBytes <= 0 {
		config.MaxResponseBytes = 4 << 20
	}
	if config.Breaker.Interval == 0 {
		config.Breaker.Interval = 60 * time.Second
	}
	if config.Breaker.Timeout == 0 {
		config.Breaker.Timeout = 30 * time.Second
	}
	if config.Breaker.MinRequests == 0 {
		config.Breaker.MinRequests = 3
	}
	if config.Breaker.FailureRatio == 0 {
		config.Breaker.FailureRatio = 0.6
	}
	if logger == nil {
		logger = logrus.New()
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	return &GeminiClient{
		baseURL:          strings.TrimRight(config.BaseURL, "/"),
		apiKey:           config.APIKey,
		temperature:      config.Temperature,
		maxResponseBytes: config.MaxResponseBytes,
		breakerConfig:    config.Breaker,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: rate.NewLimiter(limit, 1),
		logger:      logger,
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
	}
}

type generateRequest struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// Invoke sends one generateContent request to modelID and returns the JSON text of the
// first candidate. Authentication failures wrap domain.ErrAuthentication; every other
// failure is a *domain.ModelError the caller may recover from with another model.
func (c *GeminiClient) Invoke(ctx context.Context, modelID, systemInstruction, userPrompt string, attachments []domain.Attachment) (string, error) {
	if c.apiKey == "" {
		return "", &domain.ModelError{Model: modelID, Err: fmt.Errorf("%w: no API key configured", domain.ErrAuthentication)}
	}

	body, err := c.buildRequest(systemInstruction, userPrompt, attachments)
	if err != nil {
		return "", &domain.ModelError{Model: modelID, Err: err}
	}

	breaker := c.breaker(modelID)
	result, err := breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, modelID, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", &domain.ModelError{Model: modelID, Err: err}
		}
		return "", err
	}
	return result.(string), nil
}

func (c *GeminiClient) buildRequest(systemInstruction, userPrompt string, attachments []domain.Attachment) ([]byte, error) {
	parts := []part{{Text: userPrompt}}
	for _, att := range attachments {
		if len(att.Data) == 0 {
			continue
		}
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: detectMIMEType(att),
			Data:     base64.StdEncoding.EncodeToString(att.Data),
		}})
	}

	req := generateRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: &generationConfig{
			Temperature:      c.temperature,
			ResponseMimeType: "application/json",
		},
	}
	if systemInstruction != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: systemInstruction}}}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return body, nil
}

func (c *GeminiClient) do(ctx context.Context, modelID string, body []byte) (string, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", &domain.ModelError{Model: modelID, Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &domain.ModelError{Model: modelID, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &domain.ModelError{Model: modelID, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return "", &domain.ModelError{Model: modelID, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if int64(len(payload)) > c.maxResponseBytes {
		return "", &domain.ModelError{Model: modelID, StatusCode: resp.StatusCode, Err: fmt.Errorf("response exceeds %d bytes", c.maxResponseBytes)}
	}

	c.logger.WithFields(logrus.Fields{
		"model":       modelID,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
		"bytes":       len(payload),
	}).Debug("generateContent response")

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(modelID, resp.StatusCode, payload)
	}

	var decoded generateResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", &domain.ModelError{Model: modelID, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if decoded.PromptFeedback != nil && decoded.PromptFeedback.BlockReason != "" {
		return "", &domain.ModelError{Model: modelID, StatusCode: resp.StatusCode, Err: fmt.Errorf("prompt blocked: %s", decoded.PromptFeedback.BlockReason)}
	}
	if len(decoded.Candidates) == 0 {
		return "", &domain.ModelError{Model: modelID, StatusCode: resp.StatusCode, Err: errors.New("no candidates returned")}
	}

	var text strings.Builder
	for _, p := range decoded.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", &domain.ModelError{
			Model:      modelID,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("empty candidate (finish reason %q)", decoded.Candidates[0].FinishReason),
		}
	}
	return text.String(), nil
}

// classifyStatus maps a non-200 response onto the error taxonomy.
func classifyStatus(modelID string, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 512 {
		msg = msg[:512]
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden || containsAuthMarker(msg) {
		return &domain.ModelError{Model: modelID, StatusCode: status, Err: fmt.Errorf("%w: %s", domain.ErrAuthentication, msg)}
	}
	return &domain.ModelError{Model: modelID, StatusCode: status, Err: fmt.Errorf("unexpected status: %s", msg)}
}

func containsAuthMarker(body string) bool {
	for _, m := range authMarkers {
		if strings.Contains(body, m) {
			return true
		}
	}
	return false
}

// breaker returns the circuit breaker for modelID, creating it on first use.
func (c *GeminiClient) breaker(modelID string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[modelID]; ok {
		return cb
	}

	cfg := c.breakerConfig
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        modelID,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// Credential and caller-cancellation failures say nothing about model health.
			return err == nil || domain.IsAuthError(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.WithFields(logrus.Fields{
				"model": name,
				"from":  from.String(),
				"to":    to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	c.breakers[modelID] = cb
	return cb
}

// BreakerState reports the circuit state for modelID.
func (c *GeminiClient) BreakerState(modelID string) gobreaker.State {
	return c.breaker(modelID).State()
}

func detectMIMEType(att domain.Attachment) string {
	if att.MIMEType != "" {
		return att.MIMEType
	}
	detected, _, _ := strings.Cut(mimetype.Detect(att.Data).String(), ";")
	return strings.TrimSpace(detected)
}

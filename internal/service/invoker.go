package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medreport-explainer/internal/domain"
)

// Attempt outcomes reported to a Recorder.
const (
	OutcomeSuccess        = "success"
	OutcomeAuthError      = "auth_error"
	OutcomeSchemaMismatch = "schema_mismatch"
	OutcomeError          = "error"
)

// Recorder receives pipeline events for instrumentation.
type Recorder interface {
	ModelAttempt(callSite, model, outcome string, elapsed time.Duration)
	Fallback(callSite, reason string)
	CacheLookup(hit bool)
}

type nopRecorder struct{}

func (nopRecorder) ModelAttempt(string, string, string, time.Duration) {}
func (nopRecorder) Fallback(string, string) {}
func (nopRecorder) CacheLookup(bool) {}

// ModelInvoker sends one prompt through an ordered list of model identifiers. Attempts are
// strictly sequential. The first attempt whose response decodes successfully wins; an
// authentication failure aborts the chain; every other failure moves on to the next model.
type ModelInvoker struct {
	client   domain.ModelClient
	models   []string
	callSite string
	logger   *logrus.Logger
	recorder Recorder
}

// NewModelInvoker creates an invoker over models, tried in the given order.
func NewModelInvoker(client domain.ModelClient, models []string, logger *logrus.Logger) *ModelInvoker {
	return &ModelInvoker{
		client:   client,
		models:   append([]string(nil), models...),
		callSite: "default",
		logger:   logger,
		recorder: nopRecorder{},
	}
}

// WithRecorder returns a copy of the invoker that reports attempts under callSite.
func (m *ModelInvoker) WithRecorder(recorder Recorder, callSite string) *ModelInvoker {
	cp := *m
	if recorder != nil {
		cp.recorder = recorder
	}
	if callSite != "" {
		cp.callSite = callSite
	}
	return &cp
}

// Models returns the configured model order.
func (m *ModelInvoker) Models() []string {
	return append([]string(nil), m.models...)
}

// Invoke runs the chain and returns the identifier of the model that answered. decode is
// applied to each raw response; a decode error counts as a failed attempt so that a
// malformed answer falls through to the next model. When the chain is exhausted the last
// recorded error is returned.
func (m *ModelInvoker) Invoke(ctx context.Context, prompt domain.ModelPrompt, decode func(raw string) error) (string, error) {
	if len(m.models) == 0 {
		return "", domain.ErrNoModels
	}

	var lastErr error
	for i, model := range m.models {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}

		start := time.Now()
		err := m.attempt(ctx, model, prompt, decode)
		elapsed := time.Since(start)

		if err == nil {
			m.recorder.ModelAttempt(m.callSite, model, OutcomeSuccess, elapsed)
			if i > 0 {
				m.logger.WithFields(logrus.Fields{
					"call_site": m.callSite,
					"model":     model,
					"attempt":   i + 1,
				}).Info("Fallback model succeeded")
			}
			return model, nil
		}

		fields := logrus.Fields{
			"call_site":  m.callSite,
			"model":      model,
			"attempt":    i + 1,
			"elapsed_ms": elapsed.Milliseconds(),
		}

		if domain.IsAuthError(err) {
			m.recorder.ModelAttempt(m.callSite, model, OutcomeAuthError, elapsed)
			m.logger.WithFields(fields).WithError(err).Error("Authentication failed, aborting model chain")
			return "", err
		}

		outcome := OutcomeError
		if isSchemaMismatch(err) {
			outcome = OutcomeSchemaMismatch
		}
		m.recorder.ModelAttempt(m.callSite, model, outcome, elapsed)
		m.logger.WithFields(fields).WithError(err).Warn("Model attempt failed")
		lastErr = err
	}

	if lastErr == nil {
		return "", domain.ErrAllModelsFailed
	}
	return "", lastErr
}

func (m *ModelInvoker) attempt(ctx context.Context, model string, prompt domain.ModelPrompt, decode func(string) error) error {
	raw, err := m.client.Invoke(ctx, model, prompt.System, prompt.User, prompt.Attachments)
	if err != nil {
		return err
	}
	if decode == nil {
		return nil
	}
	if err := decode(raw); err != nil {
		return &domain.ModelError{Model: model, Err: fmt.Errorf("%w: %v", domain.ErrSchemaMismatch, err)}
	}
	return nil
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medreport-explainer/internal/domain"
)

// MockModelClient is a mock implementation of domain.ModelClient
type MockModelClient struct {
	mock.Mock
}

func (m *MockModelClient) Invoke(ctx context.Context, modelID, systemInstruction, userPrompt string, attachments []domain.Attachment) (string, error) {
	args := m.Called(ctx, modelID, systemInstruction, userPrompt, attachments)
	return args.String(0), args.Error(1)
}

func (m *MockModelClient) onModel(model string) *mock.Call {
	return m.On("Invoke", mock.Anything, model, mock.Anything, mock.Anything, mock.Anything)
}

func (m *MockModelClient) onPhase(model, system string) *mock.Call {
	return m.On("Invoke", mock.Anything, model, system, mock.Anything, mock.Anything)
}

type recordingRecorder struct {
	mu        sync.Mutex
	attempts  []string
	fallbacks []string
	hits      int
	misses    int
}

func (r *recordingRecorder) ModelAttempt(callSite, model, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, callSite+"/"+model+"/"+outcome)
}

func (r *recordingRecorder) Fallback(callSite, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append(r.fallbacks, callSite+"/"+reason)
}

func (r *recordingRecorder) CacheLookup(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func authErr(model string) error {
	return &domain.ModelError{Model: model, StatusCode: 401, Err: domain.ErrAuthentication}
}

func transientErr(model string, err error) error {
	return &domain.ModelError{Model: model, StatusCode: 503, Err: err}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func acceptAll(string) error { return nil }

var testPrompt = domain.ModelPrompt{System: "system", User: "user"}

func TestModelInvoker_AuthErrorFailsFast(t *testing.T) {
	client := new(MockModelClient)
	client.onModel("A").Return("", authErr("A"))

	invoker := NewModelInvoker(client, []string{"A", "B", "C"}, testLogger())
	_, err := invoker.Invoke(context.Background(), testPrompt, acceptAll)

	require.Error(t, err)
	assert.True(t, domain.IsAuthError(err))
	client.AssertNumberOfCalls(t, "Invoke", 1)
	client.AssertNotCalled(t, "Invoke", mock.Anything, "B", mock.Anything, mock.Anything, mock.Anything)
	client.AssertNotCalled(t, "Invoke", mock.Anything, "C", mock.Anything, mock.Anything, mock.Anything)
}

func TestModelInvoker_TimeoutFallsThrough(t *testing.T) {
	client := new(MockModelClient)
	client.onModel("A").Return("", transientErr("A", context.DeadlineExceeded))
	client.onModel("B").Return(`{"ok":true}`, nil)

	invoker := NewModelInvoker(client, []string{"A", "B", "C"}, testLogger())
	model, err := invoker.Invoke(context.Background(), testPrompt, acceptAll)

	require.NoError(t, err)
	assert.Equal(t, "B", model)
	client.AssertNotCalled(t, "Invoke", mock.Anything, "C", mock.Anything, mock.Anything, mock.Anything)
}

func TestModelInvoker_SchemaMismatchFallsThrough(t *testing.T) {
	client := new(MockModelClient)
	client.onModel("A").Return("this is not json", nil)
	client.onModel("B").Return(`{"reportType":"lab","detectedSections":[],"detectedTerms":[]}`, nil)

	rec := &recordingRecorder{}
	invoker := NewModelInvoker(client, []string{"A", "B"}, testLogger()).WithRecorder(rec, CallSitePreview)

	var resp previewResponse
	model, err := invoker.Invoke(context.Background(), testPrompt, decodeInto(&resp))

	require.NoError(t, err)
	assert.Equal(t, "B", model)
	assert.Equal(t, "lab", resp.ReportType)
	assert.Equal(t, []string{"preview/A/schema_mismatch", "preview/B/success"}, rec.attempts)
}

func TestModelInvoker_ReturnsLastError(t *testing.T) {
	client := new(MockModelClient)
	client.onModel("A").Return("", transientErr("A", errors.New("first")))
	client.onModel("B").Return("", transientErr("B", errors.New("second")))

	invoker := NewModelInvoker(client, []string{"A", "B"}, testLogger())
	_, err := invoker.Invoke(context.Background(), testPrompt, acceptAll)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "second")
	assert.False(t, domain.IsAuthError(err))
	client.AssertNumberOfCalls(t, "Invoke", 2)
}

func TestModelInvoker_NoModels(t *testing.T) {
	invoker := NewModelInvoker(new(MockModelClient), nil, testLogger())
	_, err := invoker.Invoke(context.Background(), testPrompt, acceptAll)
	assert.ErrorIs(t, err, domain.ErrNoModels)
}

func TestModelInvoker_StopsWhenContextDone(t *testing.T) {
	client := new(MockModelClient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	invoker := NewModelInvoker(client, []string{"A", "B"}, testLogger())
	_, err := invoker.Invoke(ctx, testPrompt, acceptAll)

	assert.ErrorIs(t, err, context.Canceled)
	client.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestModelInvoker_RejectedAttemptDoesNotLeak(t *testing.T) {
	client := new(MockModelClient)
	// Valid JSON without a reportType: rejected by validation.
	client.onModel("A").Return(`{"summary":"leaked","sections":[],"key_findings":[{"finding":"leaked"}]}`, nil)
	client.onModel("B").Return(`{"reportType":"Lab","summary":"kept","sections":[]}`, nil)

	var resp extractionResponse
	_, err := NewModelInvoker(client, []string{"A", "B"}, testLogger()).Invoke(context.Background(), testPrompt, decodeInto(&resp))

	require.NoError(t, err)
	assert.Equal(t, "kept", resp.Summary)
	assert.Empty(t, resp.KeyFindings)
}

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
		{"  {\"a\":1}  ", `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, stripCodeFence(tt.in))
		})
	}
}

func TestDefinitionItemCorrected(t *testing.T) {
	rewrite := "A neutral rewrite."
	empty := "  "

	assert.Equal(t, "orig", definitionItem{Definition: "orig", SafetyCheck: &safetyCheck{Allowed: true, Rewrite: &rewrite}}.corrected())
	assert.Equal(t, rewrite, definitionItem{Definition: "orig", SafetyCheck: &safetyCheck{Allowed: false, Rewrite: &rewrite}}.corrected())
	assert.Equal(t, "orig", definitionItem{Definition: "orig", SafetyCheck: &safetyCheck{Allowed: false, Rewrite: &empty}}.corrected())
	assert.Equal(t, "orig", definitionItem{Definition: "orig", SafetyCheck: &safetyCheck{Allowed: false}}.corrected())
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", truncateRunes("héllo", 4))
	assert.Equal(t, "héllo", truncateRunes("héllo", 0))
	assert.Equal(t, "héllo", truncateRunes("héllo", 10))
	assert.Equal(t, imageOnlyPrompt, reportBody("   ", 5))
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medreport-explainer/internal/domain"
	"github.com/medreport-explainer/internal/export"
	"github.com/medreport-explainer/internal/middleware"
	"github.com/medreport-explainer/internal/storage"
)

const (
	resultIDHeader   = "X-Result-ID"
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// analysisBody is the JSON body accepted by the preview and explain endpoints. Binary
// inputs are base64, optionally as data URLs.
type analysisBody struct {
	Text     string   `json:"text"`
	Images   []string `json:"images"`
	Document string   `json:"document"`
	UseLLM   *bool    `json:"useLLM"`
}

func (s *Server) bindAnalysis(c *gin.Context) (*analysisBody, *domain.AnalysisRequest, bool) {
	var body analysisBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondError(c, domain.NewValidationError("body", "invalid JSON body", nil))
		return nil, nil, false
	}
	req, err := domain.NewAnalysisRequest(body.Text, body.Images, body.Document)
	if err != nil {
		s.respondError(c, err)
		return nil, nil, false
	}
	return &body, req, true
}

func (s *Server) handlePreview(c *gin.Context) {
	_, req, ok := s.bindAnalysis(c)
	if !ok {
		return
	}

	preview, err := s.deps.Explainer.Preview(c.Request.Context(), req)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if record, err := storage.NewPreviewRecord(preview); err == nil {
		s.saveRecord(c, record)
	}
	c.JSON(http.StatusOK, preview)
}

func (s *Server) handleExplain(c *gin.Context) {
	body, req, ok := s.bindAnalysis(c)
	if !ok {
		return
	}

	var (
		explanation *domain.FullExplanation
		err         error
	)
	if body.UseLLM != nil && !*body.UseLLM {
		if !req.HasContent() {
			s.respondError(c, domain.NewValidationError("text", "report text, images or a document is required", nil))
			return
		}
		explanation = s.deps.Explainer.ExplainLocal(req)
	} else {
		explanation, err = s.deps.Explainer.Explain(c.Request.Context(), req)
		if err != nil {
			s.respondError(c, err)
			return
		}
	}

	if record, err := storage.NewExplanationRecord(explanation); err == nil {
		s.saveRecord(c, record)
	}
	c.JSON(http.StatusOK, explanation)
}

// saveRecord persists record and sets the result header. A failed save is logged; the
// caller still receives the result.
func (s *Server) saveRecord(c *gin.Context, record *storage.Record) {
	if s.deps.Store == nil {
		return
	}
	if err := s.deps.Store.Save(c.Request.Context(), record); err != nil {
		s.deps.Logger.WithError(err).WithField("kind", record.Kind).Warn("Failed to store result")
		return
	}
	c.Header(resultIDHeader, record.ID.String())
}

type listResponse struct {
	Total   int64             `json:"total"`
	Limit   int               `json:"limit"`
	Offset  int               `json:"offset"`
	Records []*storage.Record `json:"records"`
}

func (s *Server) handleListResults(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	limit, err := queryInt(c, "limit", defaultPageLimit)
	if err != nil || limit <= 0 {
		s.respondError(c, domain.NewValidationError("limit", "must be a positive integer", c.Query("limit")))
		return
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(c, domain.NewValidationError("offset", "must be a non-negative integer", c.Query("offset")))
		return
	}

	ctx := c.Request.Context()
	records, err := s.deps.Store.List(ctx, limit, offset)
	if err != nil {
		s.respondError(c, storageError(err))
		return
	}
	total, err := s.deps.Store.Count(ctx)
	if err != nil {
		s.respondError(c, storageError(err))
		return
	}

	c.JSON(http.StatusOK, listResponse{Total: total, Limit: limit, Offset: offset, Records: records})
}

func (s *Server) handleGetResult(c *gin.Context) {
	record, ok := s.lookupRecord(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleExportResult(c *gin.Context) {
	record, ok := s.lookupRecord(c)
	if !ok {
		return
	}
	if record.Kind != storage.KindExplanation {
		s.respondError(c, domain.NewValidationError("id", "only explanations can be exported", record.Kind))
		return
	}

	explanation, err := record.Explanation()
	if err != nil {
		s.respondError(c, storageError(err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="explanation-%s.txt"`, record.ID))
	c.String(http.StatusOK, export.Text(explanation))
}

func (s *Server) handleDeleteResult(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	id, ok := s.parseID(c)
	if !ok {
		return
	}
	if err := s.deps.Store.Delete(c.Request.Context(), id); err != nil {
		s.respondError(c, storageError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) lookupRecord(c *gin.Context) (*storage.Record, bool) {
	if !s.requireStore(c) {
		return nil, false
	}
	id, ok := s.parseID(c)
	if !ok {
		return nil, false
	}
	record, err := s.deps.Store.Get(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, storageError(err))
		return nil, false
	}
	return record, true
}

func (s *Server) requireStore(c *gin.Context) bool {
	if s.deps.Store != nil {
		return true
	}
	c.JSON(http.StatusNotFound, s.newAPIError(c, domain.CodeNotFound, "Result storage is disabled", ""))
	return false
}

func (s *Server) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.respondError(c, domain.NewValidationError("id", "must be a UUID", c.Param("id")))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

type storeFailure struct {
	err error
}

func (e *storeFailure) Error() string { return e.err.Error() }
func (e *storeFailure) Unwrap() error { return e.err }

func storageError(err error) error {
	return &storeFailure{err: err}
}

// respondError maps err onto an HTTP status and APIError body.
func (s *Server) respondError(c *gin.Context, err error) {
	var (
		validation *domain.ValidationError
		store      *storeFailure
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, s.newAPIError(c, domain.CodeInvalidInput, validation.Message, validation.Field))
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, s.newAPIError(c, domain.CodeNotFound, "Result not found", ""))
	case domain.IsAuthError(err):
		s.deps.Logger.WithError(err).Error("Text-completion service rejected the configured credential")
		c.JSON(http.StatusInternalServerError, s.newAPIError(c, domain.CodeAuthentication,
			"The analysis service is misconfigured", ""))
	case errors.As(err, &store):
		s.deps.Logger.WithError(err).Error("Result storage failed")
		c.JSON(http.StatusInternalServerError, s.newAPIError(c, domain.CodeStorage, "Result storage failed", ""))
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, s.newAPIError(c, domain.CodeInternalServer, "Request timed out", ""))
	default:
		s.deps.Logger.WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, s.newAPIError(c, domain.CodeInternalServer, "Internal server error", ""))
	}
}

func (s *Server) newAPIError(c *gin.Context, code, message, details string) *domain.APIError {
	return domain.NewAPIError(code, message, details, c.GetString(middleware.CorrelationIDKey))
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	storeStatus := "disabled"
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			s.deps.Logger.WithError(err).Warn("Health check: store unavailable")
			storeStatus = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			storeStatus = "ok"
		}
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":    overall,
		"timestamp": time.Now().UTC(),
		"version":   s.configManager.GetConfig().MCP.ServerVersion,
		"store":     storeStatus,
	})
}

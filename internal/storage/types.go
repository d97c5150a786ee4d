// Package storage persists analysis results so they can be fetched, listed,
// exported and deleted by ID.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/medreport-explainer/internal/domain"
)

// Kind distinguishes stored previews from full explanations.
type Kind string

const (
	KindPreview     Kind = "preview"
	KindExplanation Kind = "explanation"
)

// Record is one stored analysis result. Payload holds the result exactly as it was returned
// to the caller.
type Record struct {
	ID         uuid.UUID         `json:"id"`
	Kind       Kind              `json:"kind"`
	ReportType domain.ReportType `json:"report_type"`
	Source     string            `json:"source,omitempty"`
	Payload    json.RawMessage   `json:"payload"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewExplanationRecord wraps an explanation in a new record.
func NewExplanationRecord(e *domain.FullExplanation) (*Record, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshaling explanation: %w", err)
	}
	return &Record{
		ID:         uuid.New(),
		Kind:       KindExplanation,
		ReportType: e.ReportType,
		Source:     string(e.Source),
		Payload:    payload,
	}, nil
}

// NewPreviewRecord wraps a preview in a new record.
func NewPreviewRecord(p *domain.PreviewData) (*Record, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling preview: %w", err)
	}
	source := string(domain.SourceRemote)
	if p.Degraded {
		source = "degraded"
	}
	return &Record{
		ID:         uuid.New(),
		Kind:       KindPreview,
		ReportType: p.ReportType,
		Source:     source,
		Payload:    payload,
	}, nil
}

// Explanation decodes the payload of an explanation record.
func (r *Record) Explanation() (*domain.FullExplanation, error) {
	if r.Kind != KindExplanation {
		return nil, fmt.Errorf("record %s is a %s, not an explanation", r.ID, r.Kind)
	}
	var e domain.FullExplanation
	if err := json.Unmarshal(r.Payload, &e); err != nil {
		return nil, fmt.Errorf("unmarshaling explanation: %w", err)
	}
	return &e, nil
}

// Preview decodes the payload of a preview record.
func (r *Record) Preview() (*domain.PreviewData, error) {
	if r.Kind != KindPreview {
		return nil, fmt.Errorf("record %s is a %s, not a preview", r.ID, r.Kind)
	}
	var p domain.PreviewData
	if err := json.Unmarshal(r.Payload, &p); err != nil {
		return nil, fmt.Errorf("unmarshaling preview: %w", err)
	}
	return &p, nil
}

// Store defines the interface for result storage operations.
type Store interface {
	// Save inserts a record. A zero ID is replaced by a new UUID and CreatedAt is set.
	Save(ctx context.Context, record *Record) error

	// Get returns the record with id, or an error wrapping domain.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Record, error)

	// List returns records newest first.
	List(ctx context.Context, limit, offset int) ([]*Record, error)

	// Count returns the total number of records.
	Count(ctx context.Context) (int64, error)

	// Delete removes a record, returning an error wrapping domain.ErrNotFound if absent.
	Delete(ctx context.Context, id uuid.UUID) error

	// ExportJSON writes every record to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON loads records from reader, skipping IDs that already exist.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	Ping(ctx context.Context) error
	Close() error
}

// Export represents the JSON export format.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Records    []*Record `json:"records"`
}

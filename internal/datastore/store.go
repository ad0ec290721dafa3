// Package datastore stores embedding vectors with their source metadata and
// answers nearest-neighbor queries over them.
package datastore

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/tphakala/birdnet-batch/internal/conf"
	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/logger"
)

// Metadata locates an embedding in its source recording.
type Metadata struct {
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
}

// Record is a stored embedding.
type Record struct {
	ID        string    `json:"id"`
	Embedding []float32 `json:"embedding"`
	Metadata
}

// Match is a search hit.
type Match struct {
	ID    string
	Score float64
	Metadata
}

// VectorStore persists embeddings and searches them by similarity.
//
// InsertBatch stores records all-or-nothing: on error none of them are
// visible to Search or Count. Empty record IDs are generated, and the
// returned IDs follow the order of records.
type VectorStore interface {
	Insert(ctx context.Context, embedding []float32, meta Metadata) (string, error)
	InsertBatch(ctx context.Context, records []Record) ([]string, error)
	Search(ctx context.Context, query []float32, k int, metric Metric) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// New opens the backend selected in settings.
func New(s conf.EmbeddingSettings) (VectorStore, error) {
	GetLogger().Debug("opening vector store",
		logger.String("backend", s.Backend),
		logger.String("path", s.Path))

	switch strings.ToLower(s.Backend) {
	case conf.BackendMemory:
		return NewMemoryStore(), nil
	case conf.BackendSQLite:
		return OpenSQLite(s.Path)
	case conf.BackendBadger:
		return OpenBadger(s.Path)
	}
	return nil, errors.ConfigurationError("datastore", fmt.Errorf("unknown embeddings backend %q", s.Backend))
}

func dbError(op string, err error) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", op).
		Build()
}

func validateQuery(query []float32, k int) error {
	if len(query) == 0 {
		return errors.New(fmt.Errorf("empty query vector")).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}
	if k < 1 {
		return errors.New(fmt.Errorf("result count must be at least 1, got %d", k)).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// prepareRecords copies records, assigning IDs where missing.
func prepareRecords(records []Record) ([]Record, []string) {
	out := make([]Record, len(records))
	ids := make([]string, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.Embedding = slices.Clone(rec.Embedding)
		out[i] = rec
		ids[i] = rec.ID
	}
	return out, ids
}

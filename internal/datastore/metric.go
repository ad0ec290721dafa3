package datastore

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/tphakala/birdnet-batch/internal/errors"
)

// Metric is a similarity measure between embeddings.
type Metric int

const (
	MetricCosine Metric = iota
	MetricDot
	MetricEuclidean
)

// ParseMetric maps a metric name to its Metric.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine":
		return MetricCosine, nil
	case "dot":
		return MetricDot, nil
	case "euclidean":
		return MetricEuclidean, nil
	}
	return 0, errors.ConfigurationError("datastore", fmt.Errorf("unknown similarity metric %q", s))
}

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "cosine"
	case MetricDot:
		return "dot"
	case MetricEuclidean:
		return "euclidean"
	}
	return fmt.Sprintf("Metric(%d)", int(m))
}

// Ascending reports whether lower scores rank first.
func (m Metric) Ascending() bool { return m == MetricEuclidean }

// Score compares two vectors of equal length.
func (m Metric) Score(a, b []float64) float64 {
	switch m {
	case MetricDot:
		return floats.Dot(a, b)
	case MetricEuclidean:
		return floats.Distance(a, b, 2)
	default:
		na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
		if na == 0 || nb == 0 {
			return 0
		}
		return floats.Dot(a, b) / (na * nb)
	}
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// ranker keeps the best k matches for one query.
type ranker struct {
	query  []float64
	k      int
	metric Metric
	hits   []Match
}

func newRanker(query []float32, k int, metric Metric) *ranker {
	return &ranker{query: toFloat64(query), k: k, metric: metric}
}

// add scores a record. Records of a different dimension are rejected.
func (r *ranker) add(rec Record) error {
	if len(rec.Embedding) != len(r.query) {
		return errors.New(fmt.Errorf("embedding %s has dimension %d, query has %d",
			rec.ID, len(rec.Embedding), len(r.query))).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}
	score := r.metric.Score(r.query, toFloat64(rec.Embedding))
	if math.IsNaN(score) {
		return nil
	}
	r.hits = append(r.hits, Match{ID: rec.ID, Score: score, Metadata: rec.Metadata})
	if len(r.hits) > 4*r.k {
		r.trim()
	}
	return nil
}

func (r *ranker) trim() {
	slices.SortStableFunc(r.hits, func(a, b Match) int {
		if r.metric.Ascending() {
			return compare(a.Score, b.Score)
		}
		return compare(b.Score, a.Score)
	})
	r.hits = r.hits[:min(r.k, len(r.hits))]
}

func (r *ranker) results() []Match {
	r.trim()
	return slices.Clip(r.hits)
}

func compare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

package birdnet

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/tphakala/birdnet-batch/internal/conf"
	"github.com/tphakala/birdnet-batch/internal/errors"
)

// Result is one label with its confidence.
type Result struct {
	Species    string
	Confidence float32
}

// Selector pairs activated scores with labels and keeps the ones worth
// reporting.
type Selector struct {
	labels        []string
	species       map[string]struct{}
	minConfidence float32
	topN          int
}

// NewSelector returns a selector. A nil species set allows every label.
func NewSelector(labels []string, species map[string]struct{}, settings conf.InferenceSettings) *Selector {
	return &Selector{
		labels:        labels,
		species:       species,
		minConfidence: float32(settings.MinConfidence),
		topN:          settings.TopN,
	}
}

// Labels returns the label list in model output order.
func (s *Selector) Labels() []string { return s.labels }

// Select returns results above the confidence threshold, sorted by
// descending confidence and cut to the top N when configured. Equal
// confidences keep label order.
func (s *Selector) Select(scores []float32) ([]Result, error) {
	results, err := pairLabelsAndConfidence(s.labels, scores)
	if err != nil {
		return nil, err
	}

	results = slices.DeleteFunc(results, func(r Result) bool {
		if s.species != nil {
			if _, ok := s.species[r.Species]; !ok {
				return true
			}
		}
		return r.Confidence < s.minConfidence
	})

	sortResults(results)
	return trimResultsToMax(results, s.topN), nil
}

func pairLabelsAndConfidence(labels []string, preds []float32) ([]Result, error) {
	if len(labels) != len(preds) {
		return nil, errors.New(fmt.Errorf("mismatched labels and predictions lengths: %d vs %d", len(labels), len(preds))).
			Component("birdnet").
			Category(errors.CategoryInference).
			Context("labels", len(labels)).
			Context("predictions", len(preds)).
			Build()
	}
	results := make([]Result, len(labels))
	for i, label := range labels {
		results[i] = Result{Species: label, Confidence: preds[i]}
	}
	return results, nil
}

func sortResults(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})
}

// trimResultsToMax keeps the first limit results; limit <= 0 keeps all.
func trimResultsToMax(results []Result, limit int) []Result {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

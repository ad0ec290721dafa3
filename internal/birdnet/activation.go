package birdnet

import (
	"math"

	"github.com/tphakala/birdnet-batch/internal/conf"
)

const logitClip = 20.0

// FlatSigmoid maps a logit to a confidence. Sensitivity shifts the curve:
// values above 1 raise confidences, values below 1 lower them.
func FlatSigmoid(logit, sensitivity float64) float64 {
	bias := (sensitivity - 1.0) * 10.0
	x := math.Max(-logitClip, math.Min(logitClip, logit+bias))
	return 1.0 / (1.0 + math.Exp(-x))
}

// PostProcessor turns raw model outputs into confidences.
type PostProcessor struct {
	applySigmoid bool
	sensitivity  float64
}

// NewPostProcessor returns a post-processor for the given inference settings.
// With ApplySigmoid disabled scores are assumed to be calibrated already.
func NewPostProcessor(settings conf.InferenceSettings) PostProcessor {
	return PostProcessor{applySigmoid: settings.ApplySigmoid, sensitivity: settings.Sensitivity}
}

// Apply returns the activated scores in a new slice.
func (p PostProcessor) Apply(scores []float32) []float32 {
	out := make([]float32, len(scores))
	if !p.applySigmoid {
		copy(out, scores)
		return out
	}
	for i, s := range scores {
		out[i] = float32(FlatSigmoid(float64(s), p.sensitivity))
	}
	return out
}

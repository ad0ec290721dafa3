package myaudio

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts mono samples between rates. Rates are float64 because
// speed-adjusted targets are rarely integral. The output length is always
// round(len(samples) * toRate / fromRate) so window arithmetic stays exact.
func Resample(samples []float64, fromRate, toRate float64) ([]float64, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid resampling rates %v -> %v", fromRate, toRate)
	}
	if fromRate == toRate || len(samples) == 0 {
		return samples, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  fromRate,
		OutputRate: toRate,
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("creating resampler: %w", err)
	}

	out, err := r.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	want := int(math.Round(float64(len(samples)) * toRate / fromRate))
	switch {
	case len(out) > want:
		out = out[:want]
	case len(out) < want:
		out = append(out, make([]float64, want-len(out))...)
	}
	return out, nil
}

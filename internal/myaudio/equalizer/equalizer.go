// Package equalizer provides biquad filters based on Robert Bristow-Johnson's
// audio EQ cookbook, used to band-limit audio before analysis.
package equalizer

import (
	"fmt"
	"math"
)

// FilterName identifies the kind of digital filter.
type FilterName int

// FilterName constants are digital filter names.
const (
	Undefined FilterName = iota
	LowPass
	HighPass
)

// ButterworthQ gives a maximally flat passband.
const ButterworthQ = 1 / math.Sqrt2

// Filter holds the digital filter parameters and per-pass state.
type Filter struct {
	name FilterName

	in1  []float64
	in2  []float64
	out1 []float64
	out2 []float64

	passes int

	// normalized coefficients
	b0a0, b1a0, b2a0, a1a0, a2a0 float64
}

// IsZero returns true when the f is not initialized.
func (f *Filter) IsZero() bool {
	return f.name == Undefined
}

// NewFilter creates a new Filter with the specified number of passes
func NewFilter(name FilterName, a0, a1, a2, b0, b1, b2 float64, passes int) *Filter {
	return &Filter{
		name:   name,
		passes: passes,
		in1:    make([]float64, passes),
		in2:    make([]float64, passes),
		out1:   make([]float64, passes),
		out2:   make([]float64, passes),
		b0a0:   b0 / a0,
		b1a0:   b1 / a0,
		b2a0:   b2 / a0,
		a1a0:   a1 / a0,
		a2a0:   a2 / a0,
	}
}

// ApplyBatch filters samples in place. State carries over between calls so
// consecutive blocks of one stream filter seamlessly.
func (f *Filter) ApplyBatch(input []float64) {
	for p := range f.passes {
		for i := range input {
			output := f.b0a0*input[i] + f.b1a0*f.in1[p] + f.b2a0*f.in2[p] -
				f.a1a0*f.out1[p] - f.a2a0*f.out2[p]

			f.in2[p] = f.in1[p]
			f.in1[p] = input[i]
			f.out2[p] = f.out1[p]
			f.out1[p] = output

			input[i] = output
		}
	}
}

func coefficients(sampleRate, frequency, q float64, passes int) (w0, alpha float64, err error) {
	if passes < 1 {
		return 0, 0, fmt.Errorf("passes must be 1 or greater")
	}
	if q <= 0 {
		return 0, 0, fmt.Errorf("q must be greater than 0")
	}
	if frequency <= 0 || frequency >= sampleRate/2 {
		return 0, 0, fmt.Errorf("cutoff %.1f Hz outside (0, %.1f) Hz", frequency, sampleRate/2)
	}
	w0 = 2.0 * math.Pi * frequency / sampleRate
	return w0, math.Sin(w0) / (2.0 * q), nil
}

// NewLowPass returns the low-pass filter. Each pass adds 12 dB/octave.
func NewLowPass(sampleRate, frequency, q float64, passes int) (*Filter, error) {
	w0, alpha, err := coefficients(sampleRate, frequency, q, passes)
	if err != nil {
		return nil, err
	}
	cos := math.Cos(w0)
	return NewFilter(LowPass,
		1.0+alpha, -2.0*cos, 1.0-alpha,
		(1.0-cos)/2.0, 1.0-cos, (1.0-cos)/2.0,
		passes), nil
}

// NewHighPass returns the high-pass filter. Each pass adds 12 dB/octave.
func NewHighPass(sampleRate, frequency, q float64, passes int) (*Filter, error) {
	w0, alpha, err := coefficients(sampleRate, frequency, q, passes)
	if err != nil {
		return nil, err
	}
	cos := math.Cos(w0)
	return NewFilter(HighPass,
		1.0+alpha, -2.0*cos, 1.0-alpha,
		(1.0+cos)/2.0, -(1.0 + cos), (1.0+cos)/2.0,
		passes), nil
}

// FilterChain applies filters in sequence. A chain is owned by one stream and
// is not safe for concurrent use.
type FilterChain struct {
	filters []*Filter
}

// AddFilter adds a new filter to the chain.
func (fc *FilterChain) AddFilter(f *Filter) error {
	if f == nil || f.IsZero() {
		return fmt.Errorf("cannot add nil or uninitialized filter")
	}
	fc.filters = append(fc.filters, f)
	return nil
}

// Length returns the number of filters in the chain.
func (fc *FilterChain) Length() int {
	return len(fc.filters)
}

// ApplyBatch applies all filters in the chain to samples in place.
func (fc *FilterChain) ApplyBatch(input []float64) {
	for _, filter := range fc.filters {
		filter.ApplyBatch(input)
	}
}

// NewBandpass builds a high-pass at fmin followed by a low-pass at fmax.
// A bound that does not restrict the band (fmin <= 0, fmax at or above
// Nyquist) is left out, so the chain may be empty.
func NewBandpass(sampleRate, fmin, fmax float64, passes int) (*FilterChain, error) {
	chain := &FilterChain{}
	nyquist := sampleRate / 2

	if fmin > 0 && fmin < nyquist {
		hp, err := NewHighPass(sampleRate, fmin, ButterworthQ, passes)
		if err != nil {
			return nil, err
		}
		_ = chain.AddFilter(hp)
	}
	if fmax > 0 && fmax < nyquist {
		lp, err := NewLowPass(sampleRate, fmax, ButterworthQ, passes)
		if err != nil {
			return nil, err
		}
		_ = chain.AddFilter(lp)
	}
	return chain, nil
}

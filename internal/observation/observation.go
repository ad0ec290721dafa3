// Package observation turns detection sets into the result files consumed by
// annotation and analysis tools, and reads selection tables back.
package observation

import (
	"path/filepath"
	"strings"

	"github.com/tphakala/birdnet-batch/internal/birdnet"
	"github.com/tphakala/birdnet-batch/internal/conf"
	"github.com/tphakala/birdnet-batch/internal/detection"
)

// Result is the analysis output of one audio file.
type Result struct {
	Path       string
	Detections *detection.Set
	SampleRate int // native rate of the file, 0 when unknown
}

// Note is one detection row, flattened for output.
type Note struct {
	Begin          float64
	End            float64
	ScientificName string
	CommonName     string
	SpeciesCode    string
	Confidence     float64
	Source         string
}

// Notes flattens r into rows ordered by start time.
func Notes(r Result, codes birdnet.Codes) []Note {
	if r.Detections == nil {
		return nil
	}
	dets := r.Detections.Sorted()
	notes := make([]Note, 0, len(dets))
	for _, d := range dets {
		sci, common := birdnet.SplitLabel(d.Label)
		notes = append(notes, Note{
			Begin:          d.Range.Start,
			End:            d.Range.End,
			ScientificName: sci,
			CommonName:     common,
			SpeciesCode:    codes.Lookup(sci),
			Confidence:     d.Confidence,
			Source:         r.Path,
		})
	}
	return notes
}

// Params carries the run parameters echoed into result rows.
type Params struct {
	FMin                    float64
	FMax                    float64
	Speed                   float64
	Overlap                 float64
	Sensitivity             float64
	MinConfidence           float64
	Lat                     float64
	Lon                     float64
	Week                    int
	SpeciesList             string
	Model                   string
	AdditionalColumns       []string
	SampleRateAwareHighFreq bool
	Codes                   birdnet.Codes
}

// NewParams collects output parameters from settings.
func NewParams(s *conf.Settings, codes birdnet.Codes) Params {
	return Params{
		FMin:                    s.Window.FMin,
		FMax:                    s.Window.FMax,
		Speed:                   s.Window.Speed,
		Overlap:                 s.Window.Overlap,
		Sensitivity:             s.Inference.Sensitivity,
		MinConfidence:           s.Inference.MinConfidence,
		Lat:                     s.Output.Lat,
		Lon:                     s.Output.Lon,
		Week:                    s.Output.Week,
		SpeciesList:             s.Inference.SpeciesListPath,
		Model:                   filepath.Base(s.Inference.ModelPath),
		AdditionalColumns:       s.Output.AdditionalColumns,
		SampleRateAwareHighFreq: s.Output.SampleRateAwareHighFreq,
		Codes:                   codes,
	}
}

// highFreq returns the table's high frequency for a file of the given rate.
func (p Params) highFreq(sampleRate int) float64 {
	if !p.SampleRateAwareHighFreq || sampleRate <= 0 || p.Speed <= 0 {
		return p.FMax
	}
	return min(float64(sampleRate)/2, p.FMax/p.Speed)
}

// OutputPath returns where the result file of format f for input is written.
// An empty dir writes next to the input.
func OutputPath(input, dir string, f Format) string {
	base := filepath.Base(input)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, name+f.Suffix())
}

package observation

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/tphakala/birdnet-batch/internal/conf"
)

// ParamsFileName is written once per run into the output directory.
const ParamsFileName = "BirdNET_analysis_params.csv"

// WriteParams records the analysis parameters of a run as a header row
// followed by a single value row.
func WriteParams(w io.Writer, s *conf.Settings) error {
	header := []string{
		"Window length", "Segment overlap", "Audio speed",
		"Bandpass filter minimum", "Bandpass filter maximum",
		"Sigmoid sensitivity", "Minimum confidence", "Batch size",
		"Merge consecutive detections", "Model path",
	}
	values := []string{
		formatFloat(s.Window.Length),
		formatFloat(s.Window.Overlap),
		formatFloat(s.Window.Speed),
		formatFloat(s.Window.FMin),
		formatFloat(s.Window.FMax),
		formatFloat(s.Inference.Sensitivity),
		formatFloat(s.Inference.MinConfidence),
		strconv.Itoa(s.Inference.BatchSize),
		strconv.Itoa(s.Merge.MaxConsecutive),
		s.Inference.ModelPath,
	}

	return csv.NewWriter(w).WriteAll([][]string{header, values})
}

// Package conf loads the immutable per-run analysis settings.
//
// Settings are built once by Load from defaults, an optional config.yaml and
// bound CLI flags, validated, and then passed by pointer to every component.
// Nothing in the pipeline reads configuration from package state.
package conf

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/tphakala/birdnet-batch/internal/cpuspec"
	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/logger"
)

// Settings is the complete configuration of one run.
type Settings struct {
	Window     WindowSettings       `mapstructure:"window"`
	Inference  InferenceSettings    `mapstructure:"inference"`
	Merge      MergeSettings        `mapstructure:"merge"`
	Output     OutputSettings       `mapstructure:"output"`
	Embeddings EmbeddingSettings    `mapstructure:"embeddings"`
	Metrics    MetricsSettings      `mapstructure:"metrics"`
	Logging    logger.LoggingConfig `mapstructure:"logging"`
	Workers    int                  `mapstructure:"workers"` // concurrently analyzed files, 0 = auto
}

// WindowSettings controls how audio is cut into inference windows.
type WindowSettings struct {
	Length          float64 `mapstructure:"length"`          // window length in model seconds
	Overlap         float64 `mapstructure:"overlap"`         // overlap between consecutive windows in model seconds
	Speed           float64 `mapstructure:"speed"`           // playback speed factor applied before windowing
	MinLength       float64 `mapstructure:"minlength"`       // shortest usable trailing window in model seconds
	SegmentDuration float64 `mapstructure:"segmentduration"` // seconds of audio decoded per read
	SampleRate      int     `mapstructure:"samplerate"`      // model input sample rate
	FMin            float64 `mapstructure:"fmin"`            // bandpass low cutoff in Hz
	FMax            float64 `mapstructure:"fmax"`            // bandpass high cutoff in Hz
}

// Step returns the distance between consecutive window starts in file seconds.
func (w WindowSettings) Step() float64 {
	return (w.Length - w.Overlap) * w.Speed
}

// InferenceSettings controls model invocation and score selection.
type InferenceSettings struct {
	ModelPath          string  `mapstructure:"modelpath"`
	LabelPath          string  `mapstructure:"labelpath"`
	EmbeddingModelPath string  `mapstructure:"embeddingmodelpath"`
	SpeciesListPath    string  `mapstructure:"specieslistpath"`
	CodesPath          string  `mapstructure:"codespath"`
	Threads            int     `mapstructure:"threads"` // interpreter threads, 0 = auto
	BatchSize          int     `mapstructure:"batchsize"`
	ApplySigmoid       bool    `mapstructure:"applysigmoid"`
	Sensitivity        float64 `mapstructure:"sensitivity"`
	MinConfidence      float64 `mapstructure:"minconfidence"`
	TopN               int     `mapstructure:"topn"` // 0 disables top-N selection
}

// MergeSettings controls consecutive detection merging.
type MergeSettings struct {
	// MaxConsecutive is the largest number of original detections merged into
	// one. 0 and 1 disable merging, a negative value means no limit.
	MaxConsecutive int `mapstructure:"maxconsecutive"`
}

// Limit returns the merge cap, nil when unbounded.
func (m MergeSettings) Limit() *int {
	if m.MaxConsecutive < 0 {
		return nil
	}
	limit := m.MaxConsecutive
	return &limit
}

// Output types
const (
	OutputTable        = "table"
	OutputCSV          = "csv"
	OutputKaleidoscope = "kaleidoscope"
	OutputAudacity     = "audacity"
)

// OutputTypes lists every supported result format.
var OutputTypes = []string{OutputTable, OutputCSV, OutputKaleidoscope, OutputAudacity}

// Additional CSV columns
var AdditionalColumns = []string{"lat", "lon", "week", "overlap", "sensitivity", "min_conf", "species_list", "model"}

// OutputSettings controls where and how results are written.
type OutputSettings struct {
	Types             []string `mapstructure:"types"`
	Dir               string   `mapstructure:"dir"` // empty writes next to the input
	Combine           bool     `mapstructure:"combine"`
	SkipExisting      bool     `mapstructure:"skipexisting"`
	AdditionalColumns []string `mapstructure:"additionalcolumns"`
	// SampleRateAwareHighFreq clamps the table's high frequency column to the
	// file's Nyquist frequency instead of echoing FMax.
	SampleRateAwareHighFreq bool    `mapstructure:"sampleratehighfreq"`
	Lat                     float64 `mapstructure:"lat"`
	Lon                     float64 `mapstructure:"lon"`
	Week                    int     `mapstructure:"week"`
}

// Embedding store backends
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// EmbeddingSettings controls embedding extraction and search.
type EmbeddingSettings struct {
	Backend    string `mapstructure:"backend"`
	Path       string `mapstructure:"path"`
	BatchSize  int    `mapstructure:"batchsize"`
	FileOutput string `mapstructure:"fileoutput"` // optional CSV export of extracted vectors
	Metric     string `mapstructure:"metric"`     // cosine, dot or euclidean
	Results    int    `mapstructure:"results"`
}

// MetricsSettings controls Prometheus metric export.
type MetricsSettings struct {
	Enabled  bool   `mapstructure:"enabled"`
	TextFile string `mapstructure:"textfile"` // node exporter textfile written at the end of a run
}

// NewViper returns a viper instance carrying all defaults, ready for flag binding.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaultConfig(v)
	return v
}

// Load reads the configuration file, if one is found in configPaths, and
// returns validated settings. A missing config file is not an error.
func Load(v *viper.Viper, configPaths ...string) (*Settings, error) {
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if len(configPaths) > 0 || v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, errors.ConfigurationError("conf", fmt.Errorf("error reading config file: %w", err))
			}
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.ConfigurationError("conf", fmt.Errorf("error unmarshaling config into struct: %w", err))
	}
	settings.normalize()

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// normalize resolves automatic values and canonicalizes list entries.
func (s *Settings) normalize() {
	if s.Workers == 0 {
		s.Workers = cpuspec.DefaultWorkers()
	}
	if s.Inference.Threads == 0 {
		s.Inference.Threads = cpuspec.GetCPUSpec().OptimalWorkers()
	}
	s.Output.Types = canonicalList(s.Output.Types)
	s.Output.AdditionalColumns = canonicalList(s.Output.AdditionalColumns)
	s.Embeddings.Backend = strings.ToLower(s.Embeddings.Backend)
	s.Embeddings.Metric = strings.ToLower(s.Embeddings.Metric)
	if s.Output.Dir != "" {
		s.Output.Dir = filepath.Clean(s.Output.Dir)
	}
}

// canonicalList lower-cases and trims entries, dropping blanks and duplicates
// while keeping first-seen order.
func canonicalList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		item = strings.ToLower(strings.TrimSpace(item))
		if item != "" && !slices.Contains(out, item) {
			out = append(out, item)
		}
	}
	return out
}

// Default returns validated default settings, mainly for tests and library use.
func Default() *Settings {
	s, err := Load(NewViper())
	if err != nil {
		panic(fmt.Sprintf("default settings are invalid: %v", err))
	}
	return s
}

package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/tphakala/birdnet-batch/internal/birdnet"
	"github.com/tphakala/birdnet-batch/internal/conf"
	"github.com/tphakala/birdnet-batch/internal/datastore"
	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/logger"
	"github.com/tphakala/birdnet-batch/internal/myaudio"
	"github.com/tphakala/birdnet-batch/internal/observability"
)

// SearchOptions wires the collaborators of a similarity search.
type SearchOptions struct {
	Settings *conf.Settings
	Reader   myaudio.Reader
	Embedder birdnet.Embedder
	Store    datastore.VectorStore
	K        int    // defaults to Embeddings.Results
	Metric   string // defaults to Embeddings.Metric
	OutDir   string // optional directory for matched audio snippets
	Metrics  *observability.Metrics
}

// Search embeds every window of queryFile, averages the vectors into one
// query and returns its k nearest neighbors in the store. With OutDir set
// the audio of every match is written there as a WAV snippet.
func Search(ctx context.Context, queryFile string, opts SearchOptions) ([]datastore.Match, error) {
	s := opts.Settings
	if s == nil {
		return nil, errors.ConfigurationError("analysis", fmt.Errorf("settings are required"))
	}
	if err := conf.ValidateSettings(s); err != nil {
		return nil, err
	}
	if opts.Reader == nil || opts.Embedder == nil || opts.Store == nil {
		return nil, errors.ConfigurationError("analysis", fmt.Errorf("an audio reader, an embedder and a vector store are required"))
	}

	k := opts.K
	if k == 0 {
		k = s.Embeddings.Results
	}
	name := opts.Metric
	if name == "" {
		name = s.Embeddings.Metric
	}
	metric, err := datastore.ParseMetric(name)
	if err != nil {
		return nil, err
	}

	slicer, err := myaudio.NewSlicer(opts.Reader, s.Window)
	if err != nil {
		return nil, err
	}
	windows, err := embedFile(ctx, slicer, opts.Embedder, s.Embeddings.BatchSize, queryFile, newInstruments(opts.Metrics).inference)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, errors.AudioReadError("analysis", queryFile, fmt.Errorf("no audio windows in query file"))
	}

	query, err := meanVector(windows)
	if err != nil {
		return nil, err
	}
	matches, err := opts.Store.Search(ctx, query, k, metric)
	if err != nil {
		return nil, err
	}

	GetLogger().Info("search complete",
		logger.String("query", queryFile),
		logger.Int("windows", len(windows)),
		logger.Int("matches", len(matches)),
		logger.String("metric", metric.String()))

	if opts.OutDir != "" {
		if err := writeSnippets(ctx, opts.Reader, s.Window.SampleRate, opts.OutDir, matches); err != nil {
			return matches, err
		}
	}
	return matches, nil
}

// meanVector averages the embeddings of all windows.
func meanVector(windows []EmbeddingResult) ([]float32, error) {
	dim := len(windows[0].Embedding)
	sum := make([]float64, dim)
	row := make([]float64, dim)
	for _, w := range windows {
		if len(w.Embedding) != dim {
			return nil, errors.InferenceError("analysis",
				fmt.Errorf("embedding dimension changed from %d to %d", dim, len(w.Embedding)))
		}
		for i, v := range w.Embedding {
			row[i] = float64(v)
		}
		floats.Add(sum, row)
	}
	floats.Scale(1/float64(len(windows)), sum)

	out := make([]float32, dim)
	for i, v := range sum {
		out[i] = float32(v)
	}
	return out, nil
}

// writeSnippets saves the audio of each match as a mono WAV named by score
// and source span.
func writeSnippets(ctx context.Context, reader myaudio.Reader, fallbackRate int, dir string, matches []datastore.Match) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(err).
			Component("analysis").
			Category(errors.CategoryFileIO).
			Context("operation", "create_snippet_dir").
			FileContext(dir).
			Build()
	}
	for _, m := range matches {
		samples, rate, err := reader.Read(ctx, myaudio.ReadRequest{
			Path:     m.Source,
			Offset:   m.Start,
			Duration: m.End - m.Start,
			Speed:    1,
		})
		if err != nil {
			return err
		}
		if rate == 0 {
			rate = fallbackRate
		}
		dest := filepath.Join(dir, snippetName(m))
		if err := myaudio.WriteWAV(dest, samples, rate); err != nil {
			return errors.FormatError("analysis", dest, err)
		}
		GetLogger().Debug("snippet written",
			logger.String("path", dest),
			logger.Float64("score", m.Score))
	}
	return nil
}

func snippetName(m datastore.Match) string {
	stem := strings.TrimSuffix(filepath.Base(m.Source), filepath.Ext(m.Source))
	return fmt.Sprintf("%.4f_%s_%.1f_%.1f.wav", m.Score, stem, m.Start, m.End)
}

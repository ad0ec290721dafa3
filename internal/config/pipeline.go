package config

import (
	"fmt"
	"io"

	"github.com/tphakala/birdnet-batch/internal/analysis"
	"github.com/tphakala/birdnet-batch/internal/birdnet"
	"github.com/tphakala/birdnet-batch/internal/datastore"
	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/logger"
	"github.com/tphakala/birdnet-batch/internal/myaudio"
)

// Reader returns an audio reader producing model rate samples.
func (c *Context) Reader() myaudio.Reader {
	return myaudio.NewFileReader(c.Settings.Window.SampleRate)
}

// DetectionOptions loads the classifier with its labels, the optional
// species list and the optional eBird code table. The returned model must
// be closed by the caller.
func (c *Context) DetectionOptions() (analysis.DetectionOptions, *birdnet.TFLiteModel, error) {
	in := c.Settings.Inference
	if in.ModelPath == "" || in.LabelPath == "" {
		return analysis.DetectionOptions{}, nil, errors.ConfigurationError("config",
			errors.NewStd("model and label paths are required for detection"))
	}

	labels, err := birdnet.LoadLabels(in.LabelPath)
	if err != nil {
		return analysis.DetectionOptions{}, nil, err
	}

	var species map[string]struct{}
	if in.SpeciesListPath != "" {
		if species, err = birdnet.LoadSpeciesList(in.SpeciesListPath); err != nil {
			return analysis.DetectionOptions{}, nil, err
		}
		GetLogger().Info("species list loaded",
			logger.String("path", in.SpeciesListPath),
			logger.Int("species", len(species)))
	}

	var codes birdnet.Codes
	if in.CodesPath != "" {
		if codes, err = birdnet.LoadCodes(in.CodesPath); err != nil {
			return analysis.DetectionOptions{}, nil, err
		}
	}

	model, err := birdnet.LoadTFLite(in.ModelPath, in.Threads)
	if err != nil {
		return analysis.DetectionOptions{}, nil, err
	}
	if err := model.ValidateLabels(labels); err != nil {
		model.Close()
		return analysis.DetectionOptions{}, nil, err
	}

	return analysis.DetectionOptions{
		Settings:   c.Settings,
		Reader:     c.Reader(),
		Classifier: model,
		Labels:     labels,
		Species:    species,
		Codes:      codes,
		Metrics:    c.Metrics,
	}, model, nil
}

// Embedder loads the embedding model. It must be closed by the caller.
func (c *Context) Embedder() (*birdnet.TFLiteModel, error) {
	in := c.Settings.Inference
	if in.EmbeddingModelPath == "" {
		return nil, errors.ConfigurationError("config",
			errors.NewStd("an embedding model path is required"))
	}
	return birdnet.LoadTFLite(in.EmbeddingModelPath, in.Threads)
}

// Store opens the configured vector store.
func (c *Context) Store() (datastore.VectorStore, error) {
	return datastore.New(c.Settings.Embeddings)
}

// ReportFailures prints one line per failed file and returns an error
// summarizing the run, so the command exits non-zero. runErr is the run's
// Err; its per-file parts are not repeated.
func ReportFailures(w io.Writer, failures []analysis.FileError, runErr error) error {
	for _, f := range failures {
		fmt.Fprintf(w, "failed: %s: %s: %v\n", f.Path, f.Reason, f.Err)
	}
	var errs []error
	if len(failures) > 0 {
		errs = append(errs, fmt.Errorf("%d file(s) failed", len(failures)))
	}
	if multi, ok := runErr.(interface{ Unwrap() []error }); ok {
		for _, e := range multi.Unwrap() {
			var fe *analysis.FileError
			if !errors.As(e, &fe) {
				errs = append(errs, e)
			}
		}
	} else if runErr != nil {
		var fe *analysis.FileError
		if !errors.As(runErr, &fe) {
			errs = append(errs, runErr)
		}
	}
	return errors.Join(errs...)
}

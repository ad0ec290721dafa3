package analysis

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tphakala/birdnet-batch/internal/birdnet"
	"github.com/tphakala/birdnet-batch/internal/conf"
	"github.com/tphakala/birdnet-batch/internal/detection"
	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/logger"
	"github.com/tphakala/birdnet-batch/internal/myaudio"
	"github.com/tphakala/birdnet-batch/internal/observability"
	"github.com/tphakala/birdnet-batch/internal/observability/metrics"
	"github.com/tphakala/birdnet-batch/internal/observation"
)

// DetectionOptions wires the collaborators of a detection run.
type DetectionOptions struct {
	Settings   *conf.Settings
	Reader     myaudio.Reader
	Classifier birdnet.Classifier
	Labels     []string
	Species    map[string]struct{} // nil allows every label
	Codes      birdnet.Codes
	Metrics    *observability.Metrics // optional
}

// FileResult is the merged detections of one analyzed file.
type FileResult struct {
	Path       string
	Detections *detection.Set
	Outputs    []string // per-file result files written
}

// detector owns the read-only state shared by the workers of a run. Each
// call to process works on its own file.
type detector struct {
	settings   *conf.Settings
	reader     myaudio.Reader
	slicer     *myaudio.Slicer
	classifier birdnet.Classifier
	post       birdnet.PostProcessor
	selector   *birdnet.Selector
	formats    []observation.Format
	params     observation.Params
	inputDir   string
	sink       *combinedSink
	obs        instruments
}

// RunDetection analyzes a file or every audio file below a directory.
// Invalid settings are returned before any file is scheduled; per-file
// failures are reported on the returned Run.
func RunDetection(ctx context.Context, input string, opts DetectionOptions) (*Run[FileResult], error) {
	s := opts.Settings
	if s == nil {
		return nil, errors.ConfigurationError("analysis", fmt.Errorf("settings are required"))
	}
	if err := conf.ValidateSettings(s); err != nil {
		return nil, err
	}
	if opts.Reader == nil || opts.Classifier == nil {
		return nil, errors.ConfigurationError("analysis", fmt.Errorf("an audio reader and a classifier are required"))
	}
	if len(opts.Labels) == 0 {
		return nil, errors.ConfigurationError("analysis", fmt.Errorf("classifier labels are required"))
	}

	formats, err := observation.ParseFormats(s.Output.Types)
	if err != nil {
		return nil, err
	}
	slicer, err := myaudio.NewSlicer(opts.Reader, s.Window)
	if err != nil {
		return nil, err
	}
	files, err := CollectAudioFiles(input)
	if err != nil {
		return nil, err
	}

	d := &detector{
		settings:   s,
		reader:     opts.Reader,
		slicer:     slicer,
		classifier: opts.Classifier,
		post:       birdnet.NewPostProcessor(s.Inference),
		selector:   birdnet.NewSelector(opts.Labels, opts.Species, s.Inference),
		formats:    formats,
		params:     observation.NewParams(s, opts.Codes),
		obs:        newInstruments(opts.Metrics),
	}
	if info, err := os.Stat(input); err == nil && info.IsDir() {
		d.inputDir = input
	}

	root := outputRoot(input, s.Output.Dir)
	paramsPath := filepath.Join(root, observation.ParamsFileName)
	if err := writeFileAtomic(paramsPath, func(w io.Writer) error { return observation.WriteParams(w, s) }); err != nil {
		return nil, errors.FormatError("analysis", paramsPath, err)
	}

	if s.Output.Combine {
		if d.sink, err = newCombinedSink(root, formats, d.params); err != nil {
			return nil, err
		}
	}

	GetLogger().Info("starting detection run",
		logger.String("input", input),
		logger.Int("files", len(files)),
		logger.Int("workers", s.Workers))

	var finish finishFunc
	if d.sink != nil {
		finish = d.sink.close
	}
	return start(ctx, files, s.Workers, d.process, finish), nil
}

func (d *detector) process(ctx context.Context, path string) ([]FileResult, error) {
	if d.settings.Output.SkipExisting && d.resultsExist(path) {
		d.obs.file(metrics.FileSkipped, 0)
		return nil, errSkipped
	}

	defer d.obs.active()()

	started := time.Now()
	res, err := d.analyzeFile(ctx, path)
	if err != nil {
		if ctx.Err() == nil {
			d.obs.file(metrics.FileFailed, 0)
		}
		return nil, err
	}
	d.obs.file(metrics.FileAnalyzed, time.Since(started).Seconds())

	GetLogger().Info("file analyzed",
		logger.String("file", path),
		logger.Int("detections", res.Detections.Len()),
		logger.Duration("elapsed", time.Since(started)))
	return []FileResult{res}, nil
}

func (d *detector) analyzeFile(ctx context.Context, path string) (FileResult, error) {
	set, err := d.detect(ctx, path)
	if err != nil {
		return FileResult{}, err
	}

	result := observation.Result{Path: path, Detections: set}
	if info, err := d.reader.Info(path); err == nil {
		result.SampleRate = info.SampleRate
	}

	outputs, err := d.writeOutputs(result)
	if err != nil {
		return FileResult{}, err
	}
	return FileResult{Path: path, Detections: set, Outputs: outputs}, nil
}

// detect runs the model over every window of path and merges the
// selected predictions.
func (d *detector) detect(ctx context.Context, path string) (*detection.Set, error) {
	batches, err := birdnet.Batches(d.slicer.Chunks(ctx, path), d.settings.Inference.BatchSize)
	if err != nil {
		return nil, err
	}

	set := detection.NewSet()
	for batch, err := range batches {
		if err != nil {
			return nil, err
		}

		started := time.Now()
		scores, err := birdnet.Predict(ctx, d.classifier, batch)
		d.obs.inference("predict", started, batch.Len(), err)
		if err != nil {
			return nil, err
		}

		ranges := batch.Ranges()
		for i, raw := range scores {
			selected, err := d.selector.Select(d.post.Apply(raw))
			if err != nil {
				return nil, err
			}
			for _, r := range selected {
				set.Add(ranges[i], r.Species, widen(r.Confidence))
			}
		}
	}

	merged := detection.Merge(set, d.settings.Merge.Limit())
	for _, det := range merged.Detections() {
		d.obs.detection(det.Label)
	}
	return merged, nil
}

// writeOutputs writes every per-file format and appends to the combined
// outputs.
func (d *detector) writeOutputs(r observation.Result) ([]string, error) {
	var written []string
	for _, f := range d.formats {
		if d.sink != nil && d.sink.Combines(f) {
			continue
		}
		dest := observation.OutputPath(r.Path, d.outputDir(r.Path), f)
		err := writeFileAtomic(dest, func(w io.Writer) error { return f.Write(w, r, d.params) })
		d.obs.output(f, err)
		if err != nil {
			if !errors.IsFormatError(err) {
				err = errors.FormatError("analysis", dest, err)
			}
			return written, err
		}
		written = append(written, dest)
	}

	if d.sink != nil {
		err := d.sink.Append(r)
		for _, f := range d.sink.formats {
			d.obs.output(f, err)
		}
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// resultsExist reports whether every per-file output of path is present.
// Runs writing only combined outputs never skip.
func (d *detector) resultsExist(path string) bool {
	checked := 0
	for _, f := range d.formats {
		if d.settings.Output.Combine && f.CombinedName() != "" {
			continue
		}
		if _, err := os.Stat(observation.OutputPath(path, d.outputDir(path), f)); err != nil {
			return false
		}
		checked++
	}
	return checked > 0
}

// outputDir mirrors the input tree below the configured output directory.
func (d *detector) outputDir(path string) string {
	out := d.settings.Output.Dir
	if out == "" {
		return filepath.Dir(path)
	}
	if d.inputDir != "" {
		if rel, err := filepath.Rel(d.inputDir, filepath.Dir(path)); err == nil {
			return filepath.Join(out, rel)
		}
	}
	return out
}

// widen converts a model score to float64 keeping its shortest decimal
// form, so 0.9 is reported as 0.9 rather than 0.8999999761581421.
func widen(v float32) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'f', -1, 32), 64)
	return f
}

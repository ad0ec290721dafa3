package analysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tphakala/birdnet-batch/internal/birdnet"
	"github.com/tphakala/birdnet-batch/internal/conf"
	"github.com/tphakala/birdnet-batch/internal/datastore"
	"github.com/tphakala/birdnet-batch/internal/detection"
	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/logger"
	"github.com/tphakala/birdnet-batch/internal/myaudio"
	"github.com/tphakala/birdnet-batch/internal/observability"
	"github.com/tphakala/birdnet-batch/internal/observability/metrics"
)

// EmbeddingOptions wires the collaborators of an embedding extraction run.
type EmbeddingOptions struct {
	Settings *conf.Settings
	Reader   myaudio.Reader
	Embedder birdnet.Embedder
	Store    datastore.VectorStore  // optional
	Metrics  *observability.Metrics // optional
}

// EmbeddingResult is the embedding of one window.
type EmbeddingResult struct {
	Path       string
	ChunkIndex int
	Embedding  []float32
	Range      detection.TimeRange
	ID         string // vector store id, empty without a store
}

type extractor struct {
	settings *conf.Settings
	slicer   *myaudio.Slicer
	embedder birdnet.Embedder
	store    datastore.VectorStore
	export   *embeddingExport
	obs      instruments
	storeMu  sync.Mutex
}

// RunEmbeddingExtraction embeds every window of a file or of every audio
// file below a directory. Vectors of a completed file are inserted into the
// store as one block and, when configured, appended to a CSV export that
// is committed at the end of the run.
func RunEmbeddingExtraction(ctx context.Context, input string, opts EmbeddingOptions) (*Run[EmbeddingResult], error) {
	s := opts.Settings
	if s == nil {
		return nil, errors.ConfigurationError("analysis", fmt.Errorf("settings are required"))
	}
	if err := conf.ValidateSettings(s); err != nil {
		return nil, err
	}
	if opts.Reader == nil || opts.Embedder == nil {
		return nil, errors.ConfigurationError("analysis", fmt.Errorf("an audio reader and an embedder are required"))
	}
	slicer, err := myaudio.NewSlicer(opts.Reader, s.Window)
	if err != nil {
		return nil, err
	}
	files, err := CollectAudioFiles(input)
	if err != nil {
		return nil, err
	}

	e := &extractor{
		settings: s,
		slicer:   slicer,
		embedder: opts.Embedder,
		store:    opts.Store,
		obs:      newInstruments(opts.Metrics),
	}
	if s.Embeddings.FileOutput != "" {
		if e.export, err = newEmbeddingExport(s.Embeddings.FileOutput); err != nil {
			return nil, err
		}
	}

	GetLogger().Info("starting embedding extraction",
		logger.String("input", input),
		logger.Int("files", len(files)),
		logger.Int("batch_size", s.Embeddings.BatchSize))

	var finish finishFunc
	if e.export != nil {
		finish = e.export.close
	}
	return start(ctx, files, s.Workers, e.process, finish), nil
}

func (e *extractor) process(ctx context.Context, path string) ([]EmbeddingResult, error) {
	defer e.obs.active()()

	started := time.Now()
	results, err := e.extract(ctx, path)
	if err == nil {
		err = e.persist(ctx, results)
	}
	if err != nil {
		if ctx.Err() == nil {
			e.obs.file(metrics.FileFailed, 0)
		}
		return nil, err
	}
	e.obs.file(metrics.FileAnalyzed, time.Since(started).Seconds())
	GetLogger().Info("file embedded",
		logger.String("file", path),
		logger.Int("windows", len(results)),
		logger.Duration("elapsed", time.Since(started)))
	return results, nil
}

func (e *extractor) extract(ctx context.Context, path string) ([]EmbeddingResult, error) {
	return embedFile(ctx, e.slicer, e.embedder, e.settings.Embeddings.BatchSize, path, e.obs.inference)
}

// persist writes one file's vectors to the store and the export. The
// store receives the file as one all-or-nothing batch. Extraction has
// finished at this point, so the write is not interrupted by cancellation.
func (e *extractor) persist(ctx context.Context, results []EmbeddingResult) error {
	var block []byte
	if e.export != nil {
		var err error
		if block, err = e.export.Render(results); err != nil {
			return err
		}
	}

	if e.store != nil && len(results) > 0 {
		records := make([]datastore.Record, len(results))
		for i, r := range results {
			records[i] = datastore.Record{
				Embedding: r.Embedding,
				Metadata: datastore.Metadata{
					Source:     r.Path,
					ChunkIndex: r.ChunkIndex,
					Start:      r.Range.Start,
					End:        r.Range.End,
				},
			}
		}
		e.storeMu.Lock()
		ids, err := e.store.InsertBatch(context.WithoutCancel(ctx), records)
		e.storeMu.Unlock()
		if err != nil {
			return err
		}
		for i := range results {
			results[i].ID = ids[i]
		}
		e.obs.stored(len(results))
	}

	if e.export != nil {
		if err := e.export.Write(block); err != nil {
			// The export is discarded at the end of the run and the
			// error reported there. The file's vectors are stored.
			GetLogger().Warn("embedding export failed",
				logger.String("file", e.export.tmp.dest),
				logger.Error(err))
		}
	}
	return nil
}

// inferenceHook observes one model invocation.
type inferenceHook func(op string, started time.Time, chunks int, err error)

// embedFile embeds every window of path in order.
func embedFile(ctx context.Context, slicer *myaudio.Slicer, embedder birdnet.Embedder, batchSize int, path string, hook inferenceHook) ([]EmbeddingResult, error) {
	batches, err := birdnet.Batches(slicer.Chunks(ctx, path), batchSize)
	if err != nil {
		return nil, err
	}

	var results []EmbeddingResult
	for batch, err := range batches {
		if err != nil {
			return nil, err
		}
		started := time.Now()
		vectors, err := birdnet.Embed(ctx, embedder, batch)
		if hook != nil {
			hook("embed", started, batch.Len(), err)
		}
		if err != nil {
			return nil, err
		}
		for i, c := range batch.Chunks {
			results = append(results, EmbeddingResult{
				Path:       path,
				ChunkIndex: c.Index,
				Embedding:  vectors[i],
				Range:      detection.TimeRange{Start: c.Start, End: c.End},
			})
		}
	}
	return results, nil
}

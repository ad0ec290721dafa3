package birdnet

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/logger"
)

// Classifier maps a batch of sample windows to one raw score vector per
// window. Implementations must be deterministic for identical input.
type Classifier interface {
	Predict(ctx context.Context, samples [][]float32) ([][]float32, error)
}

// Embedder maps a batch of sample windows to one embedding per window.
type Embedder interface {
	Embed(ctx context.Context, samples [][]float32) ([][]float32, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, samples [][]float32) ([][]float32, error)

// Predict calls f.
func (f ClassifierFunc) Predict(ctx context.Context, samples [][]float32) ([][]float32, error) {
	return f(ctx, samples)
}

// EmbedderFunc adapts a function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, samples [][]float32) ([][]float32, error)

// Embed calls f.
func (f EmbedderFunc) Embed(ctx context.Context, samples [][]float32) ([][]float32, error) {
	return f(ctx, samples)
}

// Predict runs the classifier on a batch and checks that it returned one
// score vector per chunk. Every failure, including a panic inside the
// model, is returned as an InferenceError.
func Predict(ctx context.Context, c Classifier, batch Batch) ([][]float32, error) {
	return invoke(ctx, "predict", batch, c.Predict)
}

// Embed runs the embedder on a batch with the same guarantees as Predict.
func Embed(ctx context.Context, e Embedder, batch Batch) ([][]float32, error) {
	return invoke(ctx, "embed", batch, e.Embed)
}

func invoke(ctx context.Context, op string, batch Batch,
	fn func(context.Context, [][]float32) ([][]float32, error)) (out [][]float32, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = inferenceError(op, batch, fmt.Errorf("model panicked: %v", r))
		}
	}()

	start := time.Now()
	out, err = fn(ctx, batch.Samples())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, inferenceError(op, batch, err)
	}
	if len(out) != batch.Len() {
		return nil, errors.New(errors.ErrResultCountMismatch).
			Component("birdnet").
			Category(errors.CategoryInference).
			Context("operation", op).
			Context("inputs", batch.Len()).
			Context("outputs", len(out)).
			Build()
	}

	GetLogger().Trace("batch inferred",
		logger.String("operation", op),
		logger.Int("batch_size", batch.Len()),
		logger.Duration("elapsed", time.Since(start)))
	return out, nil
}

func inferenceError(op string, batch Batch, err error) error {
	b := errors.New(err).
		Component("birdnet").
		Category(errors.CategoryInference).
		Context("operation", op).
		Context("batch_size", batch.Len())
	if batch.Len() > 0 {
		b = b.FileContext(batch.Chunks[0].Source).Context("first_chunk", batch.Chunks[0].Index)
	}
	return b.Build()
}

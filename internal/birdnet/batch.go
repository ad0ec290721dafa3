package birdnet

import (
	"iter"

	"github.com/tphakala/birdnet-batch/internal/detection"
	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/myaudio"
)

// Batch is an ordered group of chunks submitted to the model in one call.
type Batch struct {
	Chunks []myaudio.Chunk
}

// Len returns the number of chunks in the batch.
func (b Batch) Len() int { return len(b.Chunks) }

// Samples returns the model input, one row per chunk in chunk order.
func (b Batch) Samples() [][]float32 {
	samples := make([][]float32, len(b.Chunks))
	for i := range b.Chunks {
		samples[i] = b.Chunks[i].Samples
	}
	return samples
}

// Ranges returns the time range of every chunk, index aligned with Samples.
func (b Batch) Ranges() []detection.TimeRange {
	ranges := make([]detection.TimeRange, len(b.Chunks))
	for i, c := range b.Chunks {
		ranges[i] = detection.TimeRange{Start: c.Start, End: c.End}
	}
	return ranges
}

func validateBatchSize(size int) error {
	if size < 1 {
		return errors.New(errors.ErrInvalidBatchSize).
			Component("birdnet").
			Category(errors.CategoryConfiguration).
			Context("batch_size", size).
			Build()
	}
	return nil
}

// Batches regroups a chunk sequence into batches of exactly size chunks,
// except the last, which holds whatever remains. An error from the chunk
// sequence is yielded after the pending batch is discarded.
func Batches(chunks iter.Seq2[myaudio.Chunk, error], size int) (iter.Seq2[Batch, error], error) {
	if err := validateBatchSize(size); err != nil {
		return nil, err
	}

	return func(yield func(Batch, error) bool) {
		pending := make([]myaudio.Chunk, 0, size)
		for chunk, err := range chunks {
			if err != nil {
				yield(Batch{}, err)
				return
			}
			pending = append(pending, chunk)
			if len(pending) == size {
				if !yield(Batch{Chunks: pending}, nil) {
					return
				}
				pending = make([]myaudio.Chunk, 0, size)
			}
		}
		if len(pending) > 0 {
			yield(Batch{Chunks: pending}, nil)
		}
	}, nil
}

// Split divides items into consecutive groups of at most size.
func Split[T any](items []T, size int) ([][]T, error) {
	if err := validateBatchSize(size); err != nil {
		return nil, err
	}
	groups := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		groups = append(groups, items[start:min(start+size, len(items))])
	}
	return groups, nil
}

package myaudio

import (
	"context"
	"fmt"
	"iter"
	"math"

	"github.com/tphakala/birdnet-batch/internal/conf"
	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/logger"
)

// Chunk is one fixed-length inference window.
type Chunk struct {
	Source  string
	Index   int     // position within the file, starting at 0
	Start   float64 // file seconds, rounded to 2 decimals
	End     float64 // file seconds, never past the end of the file
	Samples []float32
	Padded  bool // reaches past the end of the file, filled with zeros
}

// Slicer cuts audio files into overlapping windows of model input.
type Slicer struct {
	reader Reader
	window conf.WindowSettings

	chunkSize int // samples per window
	stepSize  int // samples between window starts
	minSize   int // smallest usable trailing window
	segSize   int // window start positions covered by one read
}

// NewSlicer validates the window geometry and returns a slicer.
func NewSlicer(reader Reader, window conf.WindowSettings) (*Slicer, error) {
	switch {
	case window.Length <= 0:
		return nil, errors.ConfigurationError("myaudio",
			fmt.Errorf("window length must be positive, got %v", window.Length))
	case window.Overlap < 0 || window.Overlap >= window.Length:
		return nil, errors.New(errors.ErrInvalidOverlap).
			Component("myaudio").
			Category(errors.CategoryConfiguration).
			Context("overlap", window.Overlap).
			Context("length", window.Length).
			Build()
	case window.Speed <= 0:
		return nil, errors.ConfigurationError("myaudio",
			fmt.Errorf("speed must be positive, got %v", window.Speed))
	case window.SampleRate <= 0:
		return nil, errors.ConfigurationError("myaudio",
			fmt.Errorf("sample rate must be positive, got %d", window.SampleRate))
	case window.SegmentDuration < window.Length:
		return nil, errors.ConfigurationError("myaudio",
			fmt.Errorf("segment duration %v shorter than window length %v", window.SegmentDuration, window.Length))
	}

	rate := float64(window.SampleRate)
	s := &Slicer{
		reader:    reader,
		window:    window,
		chunkSize: int(math.Round(window.Length * rate)),
		stepSize:  int(math.Round((window.Length - window.Overlap) * rate)),
		minSize:   int(math.Round(window.MinLength * rate)),
		segSize:   int(math.Round(window.SegmentDuration * rate)),
	}
	if s.stepSize < 1 {
		return nil, errors.ConfigurationError("myaudio",
			fmt.Errorf("window step shorter than one sample"))
	}
	return s, nil
}

// WindowSamples returns the number of samples in every chunk.
func (s *Slicer) WindowSamples() int { return s.chunkSize }

// Chunks returns a lazy, single-use sequence of windows for path in
// ascending start order. Audio is decoded one segment at a time with
// lookahead, so only windows reaching past the end of the file are padded.
// The sequence stops after yielding an error.
func (s *Slicer) Chunks(ctx context.Context, path string) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		log := GetLogger().With(logger.String("path", path))

		info, err := s.reader.Info(path)
		if err != nil {
			yield(Chunk{}, errors.AudioReadError("myaudio", path, err))
			return
		}

		w := s.window
		fileLen := info.Duration()
		step := w.Step()
		readLen := (w.SegmentDuration + 2*w.Length) * w.Speed
		expected := s.segSize + s.chunkSize

		var (
			start float64
			index int
		)
		for start < fileLen && !isClose(start, fileLen) {
			if err := ctx.Err(); err != nil {
				yield(Chunk{}, err)
				return
			}

			signal, _, err := s.reader.Read(ctx, ReadRequest{
				Path:     path,
				Offset:   start,
				Duration: readLen,
				FMin:     w.FMin,
				FMax:     w.FMax,
				Speed:    w.Speed,
			})
			if err != nil {
				if ctx.Err() != nil {
					yield(Chunk{}, ctx.Err())
					return
				}
				yield(Chunk{}, errors.AudioReadError("myaudio", path, err))
				return
			}

			atEOF := start+readLen >= fileLen || isClose(start+readLen, fileLen)
			if !atEOF && len(signal) < expected {
				yield(Chunk{}, shortWindowError(path, start, len(signal), expected))
				return
			}

			log.Debug("segment read",
				logger.Float64("offset", start),
				logger.Int("samples", len(signal)),
				logger.Bool("eof", atEOF))

			n := 0
			for pos := 0; pos < s.segSize && pos < len(signal); pos += s.stepSize {
				if err := ctx.Err(); err != nil {
					yield(Chunk{}, err)
					return
				}

				chunk := Chunk{Source: path, Index: index}
				if end := pos + s.chunkSize; end <= len(signal) {
					chunk.Samples = append(make([]float32, 0, s.chunkSize), signal[pos:end]...)
				} else {
					if !atEOF {
						yield(Chunk{}, shortWindowError(path, start, len(signal), expected))
						return
					}
					if len(signal)-pos < s.minSize {
						break
					}
					chunk.Samples = make([]float32, s.chunkSize)
					copy(chunk.Samples, signal[pos:])
					chunk.Padded = true
				}

				t := start + float64(n)*step
				chunk.Start = round2(t)
				chunk.End = round2(min(t+w.Length*w.Speed, fileLen))

				if !yield(chunk, nil) {
					return
				}
				n++
				index++
			}

			if n == 0 {
				return
			}
			start += float64(n) * step
		}
	}
}

func shortWindowError(path string, offset float64, got, want int) error {
	return errors.New(errors.ErrShortWindow).
		Component("myaudio").
		Category(errors.CategoryAudioRead).
		FileContext(path).
		Context("offset", offset).
		Context("samples", got).
		Context("expected", want).
		Build()
}

// isClose compares with relative tolerance 1e-5 and absolute tolerance 1e-8.
func isClose(a, b float64) bool {
	return math.Abs(a-b) <= 1e-8+1e-5*math.Abs(b)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

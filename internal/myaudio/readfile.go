package myaudio

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/logger"
	"github.com/tphakala/birdnet-batch/internal/myaudio/equalizer"
)

const (
	infoCacheTTL     = 10 * time.Minute
	infoCacheCleanup = 15 * time.Minute
	readBlockFrames  = 64 * 1024
	filterPasses     = 1
)

// pcmDecoder yields mono frames normalized to [-1, 1].
type pcmDecoder interface {
	info() Info
	read(dst []float64) (int, error)
}

// frameSeeker is a decoder that can jump to a frame without decoding the
// audio before it. FLAC streams are skipped by decoding.
type frameSeeker interface {
	seek(frame int64) (int64, error)
}

// getAudioDivisor returns the full-scale value for a PCM bit depth.
func getAudioDivisor(bitDepth int) (float64, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, errors.Newf("unsupported audio bit depth: %d", bitDepth).
			Component("myaudio").
			Category(errors.CategoryAudioRead).
			Context("bit_depth", bitDepth).
			Build()
	}
}

// FileReader decodes WAV and FLAC files from disk. It is safe for
// concurrent use; every Read opens its own file handle.
type FileReader struct {
	targetRate int
	infoCache  *cache.Cache
}

// NewFileReader returns a reader producing samples at targetRate.
func NewFileReader(targetRate int) *FileReader {
	return &FileReader{
		targetRate: targetRate,
		infoCache:  cache.New(infoCacheTTL, infoCacheCleanup),
	}
}

func openDecoder(path string) (*os.File, pcmDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	var dec pcmDecoder
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		dec, err = newWAVDecoder(f)
	case ".flac":
		dec, err = newFLACDecoder(f)
	default:
		err = fmt.Errorf("%w: %s", errors.ErrUnsupportedFormat, ext)
	}
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return f, dec, nil
}

// Info returns format details for path. Results are cached by path,
// size and modification time.
func (r *FileReader) Info(path string) (Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, errors.AudioReadError("myaudio", path, err)
	}
	key := fmt.Sprintf("%s|%d|%d", path, st.Size(), st.ModTime().UnixNano())
	if v, ok := r.infoCache.Get(key); ok {
		return v.(Info), nil
	}

	f, dec, err := openDecoder(path)
	if err != nil {
		return Info{}, errors.AudioReadError("myaudio", path, err)
	}
	defer func() { _ = f.Close() }()

	inf := dec.info()
	if inf.TotalFrames == 0 {
		// FLAC streams may omit the total sample count
		inf.TotalFrames, err = countFrames(dec)
		if err != nil {
			return Info{}, errors.AudioReadError("myaudio", path, err)
		}
	}
	if inf.SampleRate <= 0 {
		return Info{}, errors.AudioReadError("myaudio", path,
			fmt.Errorf("invalid sample rate %d", inf.SampleRate))
	}

	r.infoCache.Set(key, inf, cache.DefaultExpiration)
	return inf, nil
}

func countFrames(dec pcmDecoder) (int64, error) {
	buf := make([]float64, readBlockFrames)
	var total int64
	for {
		n, err := dec.read(buf)
		total += int64(n)
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

// Read decodes the requested span, mixes it to mono, applies the bandpass
// at the source rate and resamples so the result is at the target rate
// with time compressed or stretched by req.Speed.
func (r *FileReader) Read(ctx context.Context, req ReadRequest) ([]float32, int, error) {
	if req.Speed <= 0 {
		req.Speed = 1
	}

	f, dec, err := openDecoder(req.Path)
	if err != nil {
		return nil, 0, errors.AudioReadError("myaudio", req.Path, err)
	}
	defer func() { _ = f.Close() }()

	inf := dec.info()
	rate := float64(inf.SampleRate)
	skip := int64(math.Round(req.Offset * rate))
	want := int(math.Round(req.Duration * rate))

	if fs, ok := dec.(frameSeeker); ok && skip > 0 {
		reached, err := fs.seek(skip)
		if err != nil {
			return nil, 0, errors.AudioReadError("myaudio", req.Path, err)
		}
		if reached < skip {
			return nil, r.targetRate, nil
		}
		skip = 0
	}

	block := make([]float64, readBlockFrames)
	for skip > 0 {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		n, err := dec.read(block[:min(int64(len(block)), skip)])
		skip -= int64(n)
		if err == io.EOF {
			return nil, r.targetRate, nil
		}
		if err != nil {
			return nil, 0, errors.AudioReadError("myaudio", req.Path, err)
		}
	}

	signal := make([]float64, 0, want)
	for len(signal) < want {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		n, err := dec.read(block[:min(len(block), want-len(signal))])
		signal = append(signal, block[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, errors.AudioReadError("myaudio", req.Path, err)
		}
	}

	if err := bandpass(signal, inf.SampleRate, req.FMin, req.FMax); err != nil {
		return nil, 0, errors.AudioReadError("myaudio", req.Path, err)
	}

	resampled, err := Resample(signal, rate, float64(r.targetRate)/req.Speed)
	if err != nil {
		return nil, 0, errors.AudioReadError("myaudio", req.Path, err)
	}

	out := make([]float32, len(resampled))
	for i, v := range resampled {
		out[i] = float32(v)
	}

	GetLogger().Trace("segment decoded",
		logger.String("path", req.Path),
		logger.Float64("offset", req.Offset),
		logger.Int("source_frames", len(signal)),
		logger.Int("samples", len(out)))

	return out, r.targetRate, nil
}

// bandpass filters in place. Cutoffs at or beyond the source Nyquist are
// clamped since a band above the stored content cannot be represented.
func bandpass(signal []float64, sampleRate int, fmin, fmax float64) error {
	if len(signal) == 0 {
		return nil
	}
	nyquist := float64(sampleRate) / 2
	if fmax >= nyquist {
		fmax = 0
	}
	if fmin >= nyquist {
		return fmt.Errorf("bandpass low cutoff %.0f Hz exceeds Nyquist %.0f Hz", fmin, nyquist)
	}
	chain, err := equalizer.NewBandpass(float64(sampleRate), fmin, fmax, filterPasses)
	if err != nil {
		return err
	}
	chain.ApplyBatch(signal)
	return nil
}

package myaudio

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth    = 16
	wavAudioFormat = 1 // PCM
)

// WriteWAV encodes mono float samples in [-1, 1] as a 16-bit PCM WAV file.
// Out-of-range samples are clipped.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating WAV file: %w", err)
	}

	enc := wav.NewEncoder(f, sampleRate, wavBitDepth, 1, wavAudioFormat)

	data := make([]int, len(samples))
	for i, v := range samples {
		c := math.Max(-1, math.Min(1, float64(v)))
		data[i] = int(math.Round(c * math.MaxInt16))
	}

	buf := &audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("encoding WAV data: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("finalizing WAV file: %w", err)
	}
	return f.Close()
}

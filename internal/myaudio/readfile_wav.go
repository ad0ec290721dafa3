package myaudio

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type wavDecoder struct {
	src        io.ReadSeeker
	decoder    *wav.Decoder
	inf        Info
	divisor    float64
	buf        *audio.IntBuffer
	pcmStart   int64 // file offset of the first PCM byte
	frameBytes int64
}

func newWAVDecoder(r io.ReadSeeker) (*wavDecoder, error) {
	decoder := wav.NewDecoder(r)
	decoder.ReadInfo()

	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file format")
	}
	if decoder.NumChans < 1 {
		return nil, fmt.Errorf("unsupported number of channels: %d", decoder.NumChans)
	}

	divisor, err := getAudioDivisor(int(decoder.BitDepth))
	if err != nil {
		return nil, err
	}
	if err := decoder.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("locating PCM data: %w", err)
	}

	pcmStart, err := decoder.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("locating PCM data: %w", err)
	}

	bytesPerFrame := int64(decoder.BitDepth/8) * int64(decoder.NumChans)
	return &wavDecoder{
		src:        r,
		decoder:    decoder,
		divisor:    divisor,
		pcmStart:   pcmStart,
		frameBytes: bytesPerFrame,
		inf: Info{
			Format:      FormatWAV,
			SampleRate:  int(decoder.SampleRate),
			Channels:    int(decoder.NumChans),
			BitDepth:    int(decoder.BitDepth),
			TotalFrames: decoder.PCMLen() / bytesPerFrame,
		},
		buf: &audio.IntBuffer{
			Format: &audio.Format{SampleRate: int(decoder.SampleRate), NumChannels: int(decoder.NumChans)},
		},
	}, nil
}

func (w *wavDecoder) info() Info { return w.inf }

// seek moves to frame, clamped to the end of the PCM data, and returns the
// frame reached. The PCM chunk reader is rebuilt so it still stops at the
// end of the data chunk.
func (w *wavDecoder) seek(frame int64) (int64, error) {
	frame = max(0, min(frame, w.inf.TotalFrames))
	offset := frame * w.frameBytes
	if _, err := w.decoder.Seek(w.pcmStart+offset, io.SeekStart); err != nil {
		return 0, err
	}
	w.decoder.PCMChunk.R = io.LimitReader(w.src, w.decoder.PCMLen()-offset)
	return frame, nil
}

func (w *wavDecoder) read(dst []float64) (int, error) {
	channels := w.inf.Channels
	need := len(dst) * channels
	if cap(w.buf.Data) < need {
		w.buf.Data = make([]int, need)
	}
	w.buf.Data = w.buf.Data[:need]

	n, err := w.decoder.PCMBuffer(w.buf)
	if err != nil && (err != io.EOF || n == 0) {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return mixDown(dst, w.buf.Data[:n], channels, w.divisor), nil
}

// mixDown averages interleaved integer samples into mono floats in [-1, 1]
// and returns the number of complete frames written.
func mixDown(dst []float64, interleaved []int, channels int, divisor float64) int {
	frames := len(interleaved) / channels
	for i := range frames {
		var sum int
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		dst[i] = float64(sum) / float64(channels) / divisor
	}
	return frames
}

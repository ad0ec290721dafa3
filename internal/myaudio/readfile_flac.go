package myaudio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tphakala/flac"
)

type flacDecoder struct {
	decoder *flac.Decoder
	inf     Info
	divisor float64
	scratch []int
	pending []float64
}

func newFLACDecoder(r io.Reader) (*flacDecoder, error) {
	decoder, err := flac.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	if decoder.NChannels < 1 {
		return nil, fmt.Errorf("unsupported number of channels: %d", decoder.NChannels)
	}
	divisor, err := getAudioDivisor(decoder.BitsPerSample)
	if err != nil {
		return nil, err
	}

	return &flacDecoder{
		decoder: decoder,
		divisor: divisor,
		inf: Info{
			Format:      FormatFLAC,
			SampleRate:  decoder.SampleRate,
			Channels:    decoder.NChannels,
			BitDepth:    decoder.BitsPerSample,
			TotalFrames: int64(decoder.TotalSamples),
		},
	}, nil
}

func (f *flacDecoder) info() Info { return f.inf }

func (f *flacDecoder) read(dst []float64) (int, error) {
	for len(f.pending) == 0 {
		frame, err := f.decoder.Next()
		if err != nil {
			return 0, err
		}
		f.decodeFrame(frame)
	}
	n := copy(dst, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

// decodeFrame converts a little-endian interleaved frame into pending mono samples.
func (f *flacDecoder) decodeFrame(frame []byte) {
	bytesPerSample := f.inf.BitDepth / 8
	count := len(frame) / bytesPerSample
	if cap(f.scratch) < count {
		f.scratch = make([]int, count)
	}
	samples := f.scratch[:count]

	for i := range samples {
		b := frame[i*bytesPerSample:]
		switch f.inf.BitDepth {
		case 16:
			samples[i] = int(int16(binary.LittleEndian.Uint16(b)))
		case 24:
			v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
			samples[i] = int(int32(v<<8) >> 8)
		case 32:
			samples[i] = int(int32(binary.LittleEndian.Uint32(b)))
		}
	}

	mono := make([]float64, count/f.inf.Channels)
	n := mixDown(mono, samples, f.inf.Channels, f.divisor)
	f.pending = mono[:n]
}

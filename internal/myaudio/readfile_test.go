package myaudio

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-batch/internal/errors"
)

func sineWave(seconds float64, rate int, freq float64) []float32 {
	out := make([]float32, int(seconds*float64(rate)))
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func writeFixture(t *testing.T, name string, samples []float32, rate int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, WriteWAV(path, samples, rate))
	return path
}

func TestFileReaderInfo(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "tone.wav", sineWave(10, 48000, 440), 48000)
	r := NewFileReader(48000)

	info, err := r.Info(path)
	require.NoError(t, err)
	assert.Equal(t, FormatWAV, info.Format)
	assert.Equal(t, 48000, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 16, info.BitDepth)
	assert.InDelta(t, 10.0, info.Duration(), 1e-9)

	cached, err := r.Info(path)
	require.NoError(t, err)
	assert.Equal(t, info, cached)
}

func TestFileReaderReadSpan(t *testing.T) {
	t.Parallel()

	src := sineWave(10, 48000, 440)
	path := writeFixture(t, "tone.wav", src, 48000)
	r := NewFileReader(48000)

	got, rate, err := r.Read(t.Context(), ReadRequest{Path: path, Offset: 2, Duration: 3, Speed: 1})
	require.NoError(t, err)
	assert.Equal(t, 48000, rate)
	require.Len(t, got, 3*48000)

	for _, i := range []int{0, 1, 1000, 48000, len(got) - 1} {
		assert.InDelta(t, src[2*48000+i], got[i], 1e-3, "sample %d", i)
	}
}

func TestFileReaderReadPastEnd(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "short.wav", sineWave(4, 48000, 440), 48000)
	r := NewFileReader(48000)

	got, _, err := r.Read(t.Context(), ReadRequest{Path: path, Offset: 3, Duration: 3, Speed: 1})
	require.NoError(t, err)
	assert.Len(t, got, 48000)

	got, _, err = r.Read(t.Context(), ReadRequest{Path: path, Offset: 5, Duration: 3, Speed: 1})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFileReaderSlicesRealFile(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "tone.wav", sineWave(9, 48000, 1000), 48000)
	r := NewFileReader(48000)
	w := testWindow(3, 0, 1)
	w.SampleRate = 48000
	s, err := NewSlicer(r, w)
	require.NoError(t, err)

	var starts []float64
	for c, err := range s.Chunks(t.Context(), path) {
		require.NoError(t, err)
		assert.Len(t, c.Samples, 3*48000)
		starts = append(starts, c.Start)
	}
	assert.Equal(t, []float64{0, 3, 6}, starts)
}

// countingFile counts the bytes read through it.
type countingFile struct {
	io.ReadSeeker
	read int64
}

func (c *countingFile) Read(p []byte) (int, error) {
	n, err := c.ReadSeeker.Read(p)
	c.read += int64(n)
	return n, err
}

func TestWAVDecoderSeek(t *testing.T) {
	t.Parallel()

	const rate = 8000
	src := sineWave(10, rate, 440)
	f, err := os.Open(writeFixture(t, "long.wav", src, rate))
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	cf := &countingFile{ReadSeeker: f}
	dec, err := newWAVDecoder(cf)
	require.NoError(t, err)
	header := cf.read

	reached, err := dec.seek(9 * rate)
	require.NoError(t, err)
	assert.Equal(t, int64(9*rate), reached)

	buf := make([]float64, 800)
	n, err := dec.read(buf)
	require.NoError(t, err)
	require.Equal(t, 800, n)
	for _, i := range []int{0, 1, 399, 799} {
		assert.InDelta(t, src[9*rate+i], buf[i], 1e-3, "sample %d", i)
	}
	// only the requested frames were read, not the 9 s before them
	assert.Equal(t, int64(800*2), cf.read-header)

	// the data chunk still ends where it did
	_, err = dec.seek(dec.info().TotalFrames - 10)
	require.NoError(t, err)
	n, err = dec.read(buf)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	reached, err = dec.seek(dec.info().TotalFrames + 100)
	require.NoError(t, err)
	assert.Equal(t, dec.info().TotalFrames, reached)
	_, err = dec.read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFileReaderReadLateOffset(t *testing.T) {
	t.Parallel()

	src := sineWave(30, 48000, 440)
	path := writeFixture(t, "long.wav", src, 48000)
	r := NewFileReader(48000)

	got, _, err := r.Read(t.Context(), ReadRequest{Path: path, Offset: 27, Duration: 3, Speed: 1})
	require.NoError(t, err)
	require.Len(t, got, 3*48000)
	for _, i := range []int{0, 1, 48000, len(got) - 1} {
		assert.InDelta(t, src[27*48000+i], got[i], 1e-3, "sample %d", i)
	}
}

func TestFileReaderErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	corrupt := filepath.Join(dir, "corrupt.wav")
	require.NoError(t, os.WriteFile(corrupt, []byte("definitely not RIFF data"), 0o600))
	unsupported := filepath.Join(dir, "notes.mp3")
	require.NoError(t, os.WriteFile(unsupported, []byte("ID3"), 0o600))

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "missing.wav")},
		{"corrupt header", corrupt},
		{"unsupported extension", unsupported},
	}

	r := NewFileReader(48000)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := r.Info(tt.path)
			require.Error(t, err)
			assert.True(t, errors.IsAudioReadError(err))

			_, _, err = r.Read(t.Context(), ReadRequest{Path: tt.path, Duration: 3, Speed: 1})
			require.Error(t, err)
			assert.True(t, errors.IsAudioReadError(err))
		})
	}
}

func TestGetAudioDivisor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		bits    int
		want    float64
		wantErr bool
	}{
		{16, 32768, false},
		{24, 8388608, false},
		{32, 2147483648, false},
		{8, 0, true},
	}
	for _, tt := range tests {
		got, err := getAudioDivisor(tt.bits)
		if tt.wantErr {
			require.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.InDelta(t, tt.want, got, 0)
	}
}

func TestMixDown(t *testing.T) {
	t.Parallel()

	dst := make([]float64, 2)
	n := mixDown(dst, []int{16384, -16384, 32768, 0, 99}, 2, 32768)
	assert.Equal(t, 2, n)
	assert.InDelta(t, 0.0, dst[0], 1e-12)
	assert.InDelta(t, 0.5, dst[1], 1e-12)
}

func TestResampleLength(t *testing.T) {
	t.Parallel()

	in := make([]float64, 48000)
	for i := range in {
		in[i] = math.Sin(2 * math.Pi * 100 * float64(i) / 48000)
	}

	out, err := Resample(in, 48000, 32000)
	require.NoError(t, err)
	assert.Len(t, out, 32000)

	same, err := Resample(in, 48000, 48000)
	require.NoError(t, err)
	assert.Len(t, same, len(in))

	_, err = Resample(in, 0, 48000)
	require.Error(t, err)
}

func TestIsSupported(t *testing.T) {
	t.Parallel()

	assert.True(t, IsSupported("a/b/rec.WAV"))
	assert.True(t, IsSupported("rec.flac"))
	assert.False(t, IsSupported("rec.mp3"))
	assert.False(t, IsSupported("rec"))
}

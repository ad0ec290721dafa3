package analysis

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-batch/internal/errors"
)

func TestCollectAudioFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touchAudio(t, dir,
		"b.wav",
		"a.FLAC",
		"notes.txt",
		"sub/c.wav",
		".hidden.wav",
		".cache/d.wav",
	)

	files, err := CollectAudioFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.FLAC"),
		filepath.Join(dir, "b.wav"),
		filepath.Join(dir, "sub", "c.wav"),
	}, files)
}

func TestCollectAudioFilesSingle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	paths := touchAudio(t, dir, "one.wav", "readme.md")

	tests := []struct {
		name    string
		path    string
		want    []string
		wantErr error
	}{
		{"audio file", paths[0], []string{paths[0]}, nil},
		{"unsupported file", paths[1], nil, errors.ErrUnsupportedFormat},
		{"missing path", filepath.Join(dir, "gone.wav"), nil, os.ErrNotExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			files, err := CollectAudioFiles(tt.path)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, errors.IsAudioReadError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, files)
		})
	}
}

func TestOutputRoot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := touchAudio(t, dir, "x.wav")[0]

	assert.Equal(t, "/out", outputRoot(file, "/out"))
	assert.Equal(t, dir, outputRoot(dir, ""))
	assert.Equal(t, dir, outputRoot(file, ""))
}

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dest := filepath.Join(dir, "nested", "out.txt")

	require.NoError(t, writeFileAtomic(dest, func(w io.Writer) error {
		_, err := io.WriteString(w, "first")
		return err
	}))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	err = writeFileAtomic(dest, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return errors.NewStd("render failed")
	})
	require.Error(t, err)

	data, err = os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data), "failed write must leave the previous file")
	assert.Empty(t, tempFiles(t, dir))

	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestNewFileErrorReason(t *testing.T) {
	t.Parallel()

	base := errors.NewStd("boom")
	tests := []struct {
		err  error
		want string
	}{
		{errors.AudioReadError("test", "a.wav", base), "unreadable audio"},
		{errors.InferenceError("test", base), "inference failed"},
		{errors.FormatError("test", "a.csv", base), "output could not be written"},
		{errors.ConfigurationError("test", base), "invalid configuration"},
		{context.DeadlineExceeded, "timed out"},
		{base, "analysis failed"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			fe := newFileError("a.wav", tt.err)
			assert.Equal(t, tt.want, fe.Reason)
			assert.Equal(t, "a.wav", fe.Path)
			require.ErrorIs(t, fe, tt.err)
			assert.Contains(t, fe.Error(), tt.want)
		})
	}
}

// Package myaudio reads audio files and cuts them into inference windows.
package myaudio

import (
	"context"
	"path/filepath"
	"slices"
	"strings"
)

// Supported audio container formats
const (
	FormatWAV  = "wav"
	FormatFLAC = "flac"
)

// SupportedExtensions lists the file extensions the FileReader decodes.
var SupportedExtensions = []string{".wav", ".flac"}

// IsSupported reports whether path has a supported audio extension.
func IsSupported(path string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(path)))
}

// Info describes an audio source as stored on disk.
type Info struct {
	Format      string
	SampleRate  int
	Channels    int
	BitDepth    int
	TotalFrames int64 // samples per channel
}

// Duration returns the source length in seconds.
func (i Info) Duration() float64 {
	if i.SampleRate == 0 {
		return 0
	}
	return float64(i.TotalFrames) / float64(i.SampleRate)
}

// ReadRequest selects a span of a file and how to condition it.
type ReadRequest struct {
	Path     string
	Offset   float64 // file seconds
	Duration float64 // file seconds
	FMin     float64 // bandpass low cutoff in Hz, 0 disables
	FMax     float64 // bandpass high cutoff in Hz
	Speed    float64 // playback speed factor, 1 keeps time unchanged
}

// Reader provides mono audio at the model sample rate.
//
// Read returns samples covering Duration/Speed model seconds, fewer only when
// the file ends inside the requested span. The second return value is the
// sample rate of the returned samples.
type Reader interface {
	Info(path string) (Info, error)
	Read(ctx context.Context, req ReadRequest) ([]float32, int, error)
}

// Package analysis runs detection and embedding extraction over audio files.
//
// A run collects its input files, then analyzes them on a bounded worker
// pool. Each worker owns one file at a time: it slices the audio, batches
// the windows, invokes the model and writes that file's outputs atomically.
// Per-file failures are recorded on the Run handle and never stop other
// files.
package analysis

import (
	"sync"

	"github.com/tphakala/birdnet-batch/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the analysis module logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("analysis")
	})
	return serviceLogger
}

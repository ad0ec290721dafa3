package myaudio

import (
	"sync"

	"github.com/tphakala/birdnet-batch/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the myaudio module logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("myaudio")
	})
	return serviceLogger
}

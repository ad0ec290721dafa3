// Package birdnet groups analysis windows into batches, runs them through a
// classifier or embedding model and turns raw scores into ranked results.
package birdnet

import (
	"sync"

	"github.com/tphakala/birdnet-batch/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the birdnet package logger scoped to the birdnet module.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("birdnet")
	})
	return serviceLogger
}

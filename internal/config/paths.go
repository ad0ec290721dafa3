package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// getDefaultConfigPaths returns the directories searched for config.yaml,
// in priority order.
func getDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error fetching user directory: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		return []string{
			".",
			filepath.Join(homeDir, "AppData", "Local", "birdnet-batch"),
		}, nil
	default:
		return []string{
			".",
			filepath.Join(homeDir, ".config", "birdnet-batch"),
			"/etc/birdnet-batch",
		}, nil
	}
}

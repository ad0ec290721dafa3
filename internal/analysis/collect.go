package analysis

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/myaudio"
)

// CollectAudioFiles lists the audio files to analyze. A file path is
// returned as is, a directory is walked recursively skipping hidden entries.
// Results are sorted.
func CollectAudioFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.AudioReadError("analysis", path, fmt.Errorf("error accessing input: %w", err))
	}

	if !info.IsDir() {
		if !myaudio.IsSupported(path) {
			return nil, errors.AudioReadError("analysis", path,
				fmt.Errorf("%w: %s", errors.ErrUnsupportedFormat, filepath.Ext(path)))
		}
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != path && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && myaudio.IsSupported(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.New(fmt.Errorf("error walking input directory: %w", err)).
			Component("analysis").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}

	slices.Sort(files)
	return files, nil
}

// outputRoot is where run-wide artifacts go: the configured output
// directory, else the input directory, else the input file's directory.
func outputRoot(input, dir string) string {
	if dir != "" {
		return dir
	}
	if info, err := os.Stat(input); err == nil && info.IsDir() {
		return input
	}
	return filepath.Dir(input)
}

package birdnet

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/logger"
)

// LoadLabels reads one label per line, in model output order. Labels use
// the "Scientific name_Common name" form.
func LoadLabels(path string) ([]string, error) {
	labels, err := readLines(path)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read label file: %w", err)).
			Component("birdnet").
			Category(errors.CategoryLabelLoad).
			FileContext(path).
			Build()
	}
	if len(labels) == 0 {
		return nil, errors.Newf("label file %s is empty", path).
			Component("birdnet").
			Category(errors.CategoryLabelLoad).
			FileContext(path).
			Build()
	}
	return labels, nil
}

// LoadSpeciesList reads an include list of labels. An empty path means
// every species is allowed and returns a nil set.
func LoadSpeciesList(path string) (map[string]struct{}, error) {
	if path == "" {
		return nil, nil
	}
	lines, err := readLines(path)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read species list: %w", err)).
			Component("birdnet").
			Category(errors.CategoryConfiguration).
			FileContext(path).
			Build()
	}
	set := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		set[l] = struct{}{}
	}
	GetLogger().Debug("species list loaded",
		logger.String("path", path),
		logger.Int("species", len(set)))
	return set, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// Codes maps scientific names to species codes.
type Codes map[string]string

// LoadCodes parses a JSON object of scientific name to species code. An
// empty path yields an empty map so lookups fall back to the name.
func LoadCodes(path string) (Codes, error) {
	if path == "" {
		return Codes{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read species codes: %w", err)).
			Component("birdnet").
			Category(errors.CategoryLabelLoad).
			FileContext(path).
			Build()
	}
	return ParseCodes(data)
}

// ParseCodes decodes a species code JSON document. Non-string values are
// skipped.
func ParseCodes(data []byte) (Codes, error) {
	obj, err := jason.NewObjectFromBytes(data)
	if err != nil {
		return nil, errors.New(fmt.Errorf("invalid species code JSON: %w", err)).
			Component("birdnet").
			Category(errors.CategoryLabelLoad).
			Build()
	}
	codes := make(Codes)
	for name, v := range obj.Map() {
		if code, err := v.String(); err == nil {
			codes[name] = code
		}
	}
	return codes, nil
}

// Lookup returns the code for a scientific name, or the name itself.
func (c Codes) Lookup(scientific string) string {
	if code, ok := c[scientific]; ok {
		return code
	}
	return scientific
}

// SplitLabel splits a "Scientific_Common" label at the first underscore.
// A label without an underscore is returned as both names.
func SplitLabel(label string) (scientific, common string) {
	scientific, common, found := strings.Cut(label, "_")
	if !found {
		return label, label
	}
	return scientific, common
}

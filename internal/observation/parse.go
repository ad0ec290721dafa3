package observation

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/tphakala/birdnet-batch/internal/detection"
	"github.com/tphakala/birdnet-batch/internal/errors"
)

// ParseTable reads a selection table back into a detection set. Labels are
// rebuilt in "Scientific_Common" form, or the bare name when both columns
// hold the same value.
func ParseTable(r io.Reader) (*detection.Set, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return detection.NewSet(), nil
	}
	if err != nil {
		return nil, parseError(err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[name] = i
	}
	idx := make(map[string]int)
	for _, name := range []string{"Begin Time (s)", "End Time (s)", "Common Name", "Scientific Name", "Confidence"} {
		i, ok := cols[name]
		if !ok {
			return nil, parseError(fmt.Errorf("selection table is missing column %q", name))
		}
		idx[name] = i
	}

	set := detection.NewSet()
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return set, nil
		}
		if err != nil {
			return nil, parseError(err)
		}
		if len(rec) < len(header) {
			return nil, parseError(fmt.Errorf("line %d: expected %d fields, got %d", line, len(header), len(rec)))
		}

		start, err := strconv.ParseFloat(rec[idx["Begin Time (s)"]], 64)
		if err != nil {
			return nil, parseError(fmt.Errorf("line %d: %w", line, err))
		}
		end, err := strconv.ParseFloat(rec[idx["End Time (s)"]], 64)
		if err != nil {
			return nil, parseError(fmt.Errorf("line %d: %w", line, err))
		}
		confidence, err := strconv.ParseFloat(rec[idx["Confidence"]], 64)
		if err != nil {
			return nil, parseError(fmt.Errorf("line %d: %w", line, err))
		}

		sci, common := rec[idx["Scientific Name"]], rec[idx["Common Name"]]
		label := sci
		if common != sci {
			label = sci + "_" + common
		}
		set.Add(detection.TimeRange{Start: start, End: end}, label, confidence)
	}
}

func parseError(err error) error {
	return errors.New(err).
		Component("observation").
		Category(errors.CategoryOutputFormat).
		Context("operation", "parse_table").
		Build()
}

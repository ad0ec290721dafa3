package observation

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/tphakala/birdnet-batch/internal/conf"
	"github.com/tphakala/birdnet-batch/internal/detection"
	"github.com/tphakala/birdnet-batch/internal/errors"
)

// Format selects a result file layout.
type Format int

const (
	FormatTable Format = iota
	FormatCSV
	FormatKaleidoscope
	FormatAudacity
)

// ParseFormat maps a configured output type to its Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case conf.OutputTable:
		return FormatTable, nil
	case conf.OutputCSV:
		return FormatCSV, nil
	case conf.OutputKaleidoscope:
		return FormatKaleidoscope, nil
	case conf.OutputAudacity:
		return FormatAudacity, nil
	}
	return 0, errors.ConfigurationError("observation", fmt.Errorf("unknown output type %q", s))
}

// ParseFormats maps every configured output type, failing on the first
// unknown one.
func ParseFormats(types []string) ([]Format, error) {
	out := make([]Format, 0, len(types))
	for _, t := range types {
		f, err := ParseFormat(t)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (f Format) String() string {
	switch f {
	case FormatTable:
		return conf.OutputTable
	case FormatCSV:
		return conf.OutputCSV
	case FormatKaleidoscope:
		return conf.OutputKaleidoscope
	case FormatAudacity:
		return conf.OutputAudacity
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Suffix is appended to the input's base name, without extension, to name
// the per-file result.
func (f Format) Suffix() string {
	switch f {
	case FormatTable:
		return ".BirdNET.selection.table.txt"
	case FormatCSV:
		return ".BirdNET.results.csv"
	case FormatKaleidoscope:
		return ".BirdNET.results.kaleidoscope.csv"
	case FormatAudacity:
		return ".BirdNET.results.txt"
	}
	return ""
}

// CombinedName is the file name of the run-wide combined result, empty for
// formats that cannot be combined.
func (f Format) CombinedName() string {
	switch f {
	case FormatTable:
		return "BirdNET_SelectionTable.txt"
	case FormatCSV:
		return "BirdNET_CombinedTable.csv"
	case FormatKaleidoscope:
		return "BirdNET_Kaleidoscope.csv"
	}
	return ""
}

// formatter renders one layout. rows returns the records for r, numbering
// selections from first where the layout has them.
type formatter struct {
	comma  rune
	header func(p Params) []string
	rows   func(r Result, p Params, first int) [][]string
}

var formatters = map[Format]formatter{
	FormatTable:        {comma: '\t', header: tableHeader, rows: tableRows},
	FormatCSV:          {comma: ',', header: csvHeader, rows: csvRows},
	FormatKaleidoscope: {comma: ',', header: kaleidoscopeHeader, rows: kaleidoscopeRows},
	FormatAudacity:     {comma: '\t', rows: audacityRows},
}

func (f Format) formatter() (formatter, error) {
	fm, ok := formatters[f]
	if !ok {
		return formatter{}, fmt.Errorf("no formatter for %s", f)
	}
	return fm, nil
}

func (f Format) newWriter(w io.Writer) (*csv.Writer, formatter, error) {
	fm, err := f.formatter()
	if err != nil {
		return nil, fm, err
	}
	cw := csv.NewWriter(w)
	cw.Comma = fm.comma
	return cw, fm, nil
}

// WriteHeader writes the header row of f, if it has one.
func (f Format) WriteHeader(w io.Writer, p Params) error {
	cw, fm, err := f.newWriter(w)
	if err != nil {
		return err
	}
	if fm.header == nil {
		return nil
	}
	if err := cw.Write(fm.header(p)); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// WriteRows writes the rows of r, numbering selections from first, and
// returns how many rows were written.
func (f Format) WriteRows(w io.Writer, r Result, p Params, first int) (int, error) {
	cw, fm, err := f.newWriter(w)
	if err != nil {
		return 0, err
	}
	rows := fm.rows(r, p, first)
	if err := cw.WriteAll(rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Write writes a complete per-file result: header and rows. Failures are
// returned as format errors.
func (f Format) Write(w io.Writer, r Result, p Params) error {
	if err := f.WriteHeader(w, p); err != nil {
		return errors.FormatError("observation", r.Path, err)
	}
	if _, err := f.WriteRows(w, r, p, 1); err != nil {
		return errors.FormatError("observation", r.Path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func tableHeader(Params) []string {
	return []string{
		"Selection", "Begin Time (s)", "End Time (s)", "Common Name", "Scientific Name",
		"Species Code", "Confidence", "View", "Channel", "Low Freq (Hz)", "High Freq (Hz)", "Begin Path",
	}
}

func tableRows(r Result, p Params, first int) [][]string {
	notes := Notes(r, p.Codes)
	low, high := formatFloat(p.FMin), formatFloat(p.highFreq(r.SampleRate))
	rows := make([][]string, 0, len(notes))
	for i, n := range notes {
		rows = append(rows, []string{
			strconv.Itoa(first + i),
			detection.FormatSeconds(n.Begin),
			detection.FormatSeconds(n.End),
			n.CommonName,
			n.ScientificName,
			n.SpeciesCode,
			formatFloat(n.Confidence),
			"Spectrogram 1",
			"1",
			low,
			high,
			n.Source,
		})
	}
	return rows
}

func csvHeader(p Params) []string {
	return append([]string{"Start (s)", "End (s)", "Scientific name", "Common name", "Confidence", "File"},
		p.AdditionalColumns...)
}

func csvRows(r Result, p Params, _ int) [][]string {
	extra := make([]string, len(p.AdditionalColumns))
	for i, col := range p.AdditionalColumns {
		extra[i] = p.column(col)
	}
	notes := Notes(r, p.Codes)
	rows := make([][]string, 0, len(notes))
	for _, n := range notes {
		row := []string{
			detection.FormatSeconds(n.Begin),
			detection.FormatSeconds(n.End),
			n.ScientificName,
			n.CommonName,
			formatFloat(n.Confidence),
			n.Source,
		}
		rows = append(rows, append(row, extra...))
	}
	return rows
}

// column renders an additional csv column. Unset location and week values
// are left empty.
func (p Params) column(name string) string {
	switch name {
	case "lat":
		return optionalFloat(p.Lat)
	case "lon":
		return optionalFloat(p.Lon)
	case "week":
		if p.Week < 0 {
			return ""
		}
		return strconv.Itoa(p.Week)
	case "overlap":
		return formatFloat(p.Overlap)
	case "sensitivity":
		return formatFloat(p.Sensitivity)
	case "min_conf":
		return formatFloat(p.MinConfidence)
	case "species_list":
		return p.SpeciesList
	case "model":
		return p.Model
	}
	return ""
}

func optionalFloat(v float64) string {
	if v == -1 {
		return ""
	}
	return formatFloat(v)
}

func kaleidoscopeHeader(Params) []string {
	return []string{
		"INDIR", "FOLDER", "IN FILE", "OFFSET", "DURATION", "scientific_name", "common_name",
		"confidence", "lat", "lon", "week", "overlap", "sensitivity",
	}
}

func kaleidoscopeRows(r Result, p Params, _ int) [][]string {
	dir := filepath.Dir(r.Path)
	indir, folder, file := filepath.Dir(dir), filepath.Base(dir), filepath.Base(r.Path)
	notes := Notes(r, p.Codes)
	rows := make([][]string, 0, len(notes))
	for _, n := range notes {
		rows = append(rows, []string{
			indir,
			folder,
			file,
			detection.FormatSeconds(n.Begin),
			formatFloat(n.End - n.Begin),
			n.ScientificName,
			n.CommonName,
			formatFloat(n.Confidence),
			p.column("lat"),
			p.column("lon"),
			p.column("week"),
			p.column("overlap"),
			p.column("sensitivity"),
		})
	}
	return rows
}

func audacityRows(r Result, p Params, _ int) [][]string {
	notes := Notes(r, p.Codes)
	rows := make([][]string, 0, len(notes))
	for _, n := range notes {
		rows = append(rows, []string{
			detection.FormatSeconds(n.Begin),
			detection.FormatSeconds(n.End),
			n.CommonName + ", " + n.ScientificName,
			formatFloat(n.Confidence),
		})
	}
	return rows
}

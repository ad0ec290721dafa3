package analysis

import (
	"bytes"
	"encoding/csv"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/tphakala/birdnet-batch/internal/detection"
	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/logger"
	"github.com/tphakala/birdnet-batch/internal/observation"
)

// combinedSink appends every completed file to run-wide result files. A
// file's rows are written as one block under the lock, so blocks of
// different files never interleave.
type combinedSink struct {
	mu      sync.Mutex
	params  observation.Params
	formats []observation.Format
	outputs map[observation.Format]*combinedOutput
	err     error // first write failure, after which nothing is committed
}

type combinedOutput struct {
	tmp  *tempFile
	next int // next selection number
}

// newCombinedSink opens a temp file with its header for every combinable
// format. Formats that cannot be combined are left to per-file output.
func newCombinedSink(root string, formats []observation.Format, p observation.Params) (*combinedSink, error) {
	s := &combinedSink{params: p, outputs: make(map[observation.Format]*combinedOutput)}
	for _, f := range formats {
		name := f.CombinedName()
		if name == "" {
			continue
		}
		dest := filepath.Join(root, name)
		tmp, err := createTemp(dest)
		if err != nil {
			s.close(true)
			return nil, errors.FormatError("analysis", dest, err)
		}
		if err := f.WriteHeader(tmp, p); err != nil {
			tmp.Abort()
			s.close(true)
			return nil, errors.FormatError("analysis", dest, err)
		}
		s.formats = append(s.formats, f)
		s.outputs[f] = &combinedOutput{tmp: tmp, next: 1}
	}
	return s, nil
}

// Combines reports whether f is written by the sink.
func (s *combinedSink) Combines(f observation.Format) bool {
	_, ok := s.outputs[f]
	return ok
}

// Append adds the rows of r to every combined output. A rendering error
// leaves every output untouched. A write error breaks the sink: later
// appends fail and close discards every output.
func (s *combinedSink) Append(r observation.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	blocks := make([]bytes.Buffer, len(s.formats))
	counts := make([]int, len(s.formats))
	for i, f := range s.formats {
		n, err := f.WriteRows(&blocks[i], r, s.params, s.outputs[f].next)
		if err != nil {
			return errors.FormatError("analysis", r.Path, err)
		}
		counts[i] = n
	}
	for i, f := range s.formats {
		out := s.outputs[f]
		if _, err := out.tmp.Write(blocks[i].Bytes()); err != nil {
			s.err = errors.FormatError("analysis", out.tmp.dest, err)
			return s.err
		}
		out.next += counts[i]
	}
	return nil
}

// close commits the outputs, or discards them when aborted.
func (s *combinedSink) close(aborted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil && !aborted {
		aborted = true
		GetLogger().Warn("combined results discarded", logger.Error(s.err))
	}

	var errs []error
	if s.err != nil {
		errs = append(errs, s.err)
	}
	for _, f := range s.formats {
		out := s.outputs[f]
		if aborted {
			out.tmp.Abort()
			continue
		}
		if err := out.tmp.Commit(); err != nil {
			errs = append(errs, errors.FormatError("analysis", out.tmp.dest, err))
			continue
		}
		GetLogger().Info("combined results written",
			logger.String("format", f.String()),
			logger.String("path", out.tmp.dest),
			logger.Int("rows", out.next-1))
	}
	return errors.Join(errs...)
}

// embeddingExport writes extracted vectors of the whole run to one CSV.
type embeddingExport struct {
	mu  sync.Mutex
	tmp *tempFile
	err error // first write failure, after which nothing is committed
}

var embeddingHeader = []string{"File", "Start (s)", "End (s)", "Embedding"}

func newEmbeddingExport(dest string) (*embeddingExport, error) {
	tmp, err := createTemp(dest)
	if err != nil {
		return nil, errors.FormatError("analysis", dest, err)
	}
	cw := csv.NewWriter(tmp)
	err = cw.Write(embeddingHeader)
	if cw.Flush(); err == nil {
		err = cw.Error()
	}
	if err != nil {
		tmp.Abort()
		return nil, errors.FormatError("analysis", dest, err)
	}
	return &embeddingExport{tmp: tmp}, nil
}

// Render formats the rows of one file without touching the export.
func (e *embeddingExport) Render(results []EmbeddingResult) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	for _, r := range results {
		row := []string{
			r.Path,
			detection.FormatSeconds(r.Range.Start),
			detection.FormatSeconds(r.Range.End),
			joinVector(r.Embedding),
		}
		if err := cw.Write(row); err != nil {
			return nil, errors.FormatError("analysis", e.tmp.dest, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, errors.FormatError("analysis", e.tmp.dest, err)
	}
	return buf.Bytes(), nil
}

// Write appends a rendered block. A failure breaks the export.
func (e *embeddingExport) Write(block []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.err != nil {
		return e.err
	}
	if _, err := e.tmp.Write(block); err != nil {
		e.err = errors.FormatError("analysis", e.tmp.dest, err)
	}
	return e.err
}

func (e *embeddingExport) close(aborted bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if aborted || e.err != nil {
		e.tmp.Abort()
		return e.err
	}
	if err := e.tmp.Commit(); err != nil {
		return errors.FormatError("analysis", e.tmp.dest, err)
	}
	return nil
}

func joinVector(v []float32) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(float64(x), 'f', -1, 32)
	}
	return strings.Join(parts, ";")
}

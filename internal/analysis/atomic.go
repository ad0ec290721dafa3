package analysis

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
)

// tempFile is an output being written next to its destination. Nothing is
// visible at the destination until Commit.
type tempFile struct {
	f    *os.File
	w    *bufio.Writer
	dest string
}

func createTemp(dest string) (*tempFile, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return nil, err
	}
	return &tempFile{f: f, w: bufio.NewWriter(f), dest: dest}, nil
}

func (t *tempFile) Write(p []byte) (int, error) { return t.w.Write(p) }

// Commit flushes, syncs and renames the temp file onto its destination.
func (t *tempFile) Commit() error {
	if err := t.w.Flush(); err != nil {
		t.Abort()
		return err
	}
	if err := t.f.Sync(); err != nil {
		t.Abort()
		return err
	}
	if err := t.f.Chmod(0o644); err != nil {
		t.Abort()
		return err
	}
	if err := t.f.Close(); err != nil {
		_ = os.Remove(t.f.Name())
		return err
	}
	if err := os.Rename(t.f.Name(), t.dest); err != nil {
		_ = os.Remove(t.f.Name())
		return err
	}
	return nil
}

// Abort discards the temp file.
func (t *tempFile) Abort() {
	_ = t.f.Close()
	_ = os.Remove(t.f.Name())
}

// writeFileAtomic writes dest through a temp file in the same directory.
func writeFileAtomic(dest string, write func(io.Writer) error) error {
	t, err := createTemp(dest)
	if err != nil {
		return err
	}
	if err := write(t); err != nil {
		t.Abort()
		return err
	}
	return t.Commit()
}

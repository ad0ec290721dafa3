package analysis

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/birdnet-batch/internal/birdnet"
	"github.com/tphakala/birdnet-batch/internal/conf"
	"github.com/tphakala/birdnet-batch/internal/myaudio"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("testing.(*T).Run"),
		goleak.IgnoreTopFunction("runtime.gopark"),
	)
}

const (
	testRate   = 100
	blackbird  = "Turdus merula_Eurasian Blackbird"
	robin      = "Erithacus rubecula_European Robin"
	testLength = 12.0
)

var testLabels = []string{blackbird, robin}

// fakeReader serves synthetic audio where every sample holds its own file
// time in seconds. Files are looked up by base name.
type fakeReader struct {
	mu      sync.Mutex
	lengths map[string]float64
	errs    map[string]error
	block   chan struct{} // when set, reads wait for it to close
	reads   int
}

func newFakeReader() *fakeReader {
	return &fakeReader{lengths: map[string]float64{}, errs: map[string]error{}}
}

func (f *fakeReader) length(path string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.lengths[filepath.Base(path)]; ok {
		return l
	}
	return testLength
}

func (f *fakeReader) err(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[filepath.Base(path)]
}

func (f *fakeReader) Info(path string) (myaudio.Info, error) {
	if err := f.err(path); err != nil {
		return myaudio.Info{}, err
	}
	return myaudio.Info{
		Format:      myaudio.FormatWAV,
		SampleRate:  testRate,
		Channels:    1,
		BitDepth:    16,
		TotalFrames: int64(math.Round(f.length(path) * testRate)),
	}, nil
}

func (f *fakeReader) Read(ctx context.Context, req myaudio.ReadRequest) ([]float32, int, error) {
	f.mu.Lock()
	f.reads++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	avail := max(0, min(req.Duration, f.length(req.Path)-req.Offset))
	n := int(math.Round(avail / req.Speed * testRate))
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(req.Offset + float64(i)*req.Speed/testRate)
	}
	return out, testRate, nil
}

// timeClassifier scores the blackbird in windows starting before 6 s and
// the robin after.
func timeClassifier() birdnet.ClassifierFunc {
	return func(_ context.Context, samples [][]float32) ([][]float32, error) {
		out := make([][]float32, len(samples))
		for i, s := range samples {
			if s[0] < 6 {
				out[i] = []float32{0.9, 0.1}
			} else {
				out[i] = []float32{0.1, 0.8}
			}
		}
		return out, nil
	}
}

// timeEmbedder maps a window to a 2-d vector pointing along its start time.
func timeEmbedder() birdnet.EmbedderFunc {
	return func(_ context.Context, samples [][]float32) ([][]float32, error) {
		out := make([][]float32, len(samples))
		for i, s := range samples {
			out[i] = []float32{1, s[0]}
		}
		return out, nil
	}
}

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	s := conf.Default()
	s.Workers = 2
	s.Window = conf.WindowSettings{
		Length:          3,
		Overlap:         0,
		Speed:           1,
		MinLength:       1,
		SegmentDuration: 600,
		SampleRate:      testRate,
		FMin:            0,
		FMax:            15000,
	}
	s.Inference.ApplySigmoid = false
	s.Inference.MinConfidence = 0.5
	s.Inference.BatchSize = 2
	s.Merge.MaxConsecutive = 1
	s.Output.Types = []string{conf.OutputTable}
	s.Embeddings.Backend = conf.BackendMemory
	s.Embeddings.BatchSize = 3
	return s
}

// touchAudio creates empty audio files below dir.
func touchAudio(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, len(names))
	for i, name := range names {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o644))
		paths[i] = p
	}
	return paths
}

// tempFiles lists leftover temporary outputs below dir.
func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	var found []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(p) == ".tmp" {
			found = append(found, p)
		}
		return nil
	})
	require.NoError(t, err)
	return found
}

func failingClassifier(msg string) birdnet.ClassifierFunc {
	return func(context.Context, [][]float32) ([][]float32, error) {
		return nil, fmt.Errorf("%s", msg)
	}
}

package birdnet

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-batch/internal/conf"
	"github.com/tphakala/birdnet-batch/internal/errors"
	"github.com/tphakala/birdnet-batch/internal/myaudio"
)

// mockClassifier records calls and returns scripted outputs.
type mockClassifier struct {
	mu      sync.Mutex
	calls   int
	outputs int // rows to return, -1 echoes the input size
	err     error
	panics  bool
}

func (m *mockClassifier) Predict(_ context.Context, samples [][]float32) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.panics {
		panic("interpreter crashed")
	}
	if m.err != nil {
		return nil, m.err
	}
	n := m.outputs
	if n < 0 {
		n = len(samples)
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{1, 2}
	}
	return out, nil
}

func testBatch(n int) Batch {
	b := Batch{}
	for i := range n {
		b.Chunks = append(b.Chunks, myaudio.Chunk{Source: "rec.wav", Index: i, Samples: make([]float32, 4)})
	}
	return b
}

func TestPredict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		model     *mockClassifier
		wantErr   bool
		mismatch  bool
		inference bool
	}{
		{name: "matching outputs", model: &mockClassifier{outputs: -1}},
		{name: "too few outputs", model: &mockClassifier{outputs: 2}, wantErr: true, mismatch: true, inference: true},
		{name: "model error", model: &mockClassifier{err: errors.NewStd("invoke failed")}, wantErr: true, inference: true},
		{name: "model panic", model: &mockClassifier{panics: true}, wantErr: true, inference: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := Predict(t.Context(), tt.model, testBatch(3))
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Len(t, out, 3)
				return
			}
			require.Error(t, err)
			assert.Nil(t, out)
			assert.Equal(t, tt.inference, errors.IsInferenceError(err))
			assert.Equal(t, tt.mismatch, errors.Is(err, errors.ErrResultCountMismatch))
		})
	}
}

func TestPredictCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	m := &mockClassifier{outputs: -1}
	_, err := Predict(ctx, m, testBatch(2))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, m.calls)
}

func TestEmbedFunc(t *testing.T) {
	t.Parallel()

	e := EmbedderFunc(func(_ context.Context, s [][]float32) ([][]float32, error) {
		out := make([][]float32, len(s))
		for i := range s {
			out[i] = []float32{float32(len(s[i]))}
		}
		return out, nil
	})
	out, err := Embed(t.Context(), e, testBatch(2))
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{4}, {4}}, out)
}

func TestFlatSigmoid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		logit, sensitivity, want float64
	}{
		{0, 1, 0.5},
		{2, 1, 0.8807970779778823},
		{-2, 1, 0.11920292202211755},
		{0, 1.5, 0.9933071490757153},
		{0, 0.5, 0.0066928509242848554},
		{100, 1, 0.9999999979388463},
		{-100, 1, 2.0611536181902037e-09},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, FlatSigmoid(tt.logit, tt.sensitivity), 1e-12,
			"logit=%v sensitivity=%v", tt.logit, tt.sensitivity)
	}
}

func TestPostProcessor(t *testing.T) {
	t.Parallel()

	raw := []float32{-1, 0, 3}

	pass := NewPostProcessor(conf.InferenceSettings{ApplySigmoid: false, Sensitivity: 1})
	out := pass.Apply(raw)
	assert.Equal(t, raw, out)
	out[0] = 42
	assert.InDelta(t, -1, raw[0], 0, "input must not be modified")

	sig := NewPostProcessor(conf.InferenceSettings{ApplySigmoid: true, Sensitivity: 1})
	got := sig.Apply(raw)
	for i, v := range raw {
		assert.InDelta(t, 1/(1+math.Exp(-float64(v))), float64(got[i]), 1e-7)
	}
}

func TestSelectorSelect(t *testing.T) {
	t.Parallel()

	labels := []string{"A_a", "B_b", "C_c", "D_d"}
	scores := []float32{0.3, 0.9, 0.1, 0.6}

	tests := []struct {
		name     string
		species  map[string]struct{}
		settings conf.InferenceSettings
		want     []string
	}{
		{"threshold", nil, conf.InferenceSettings{MinConfidence: 0.25}, []string{"B_b", "D_d", "A_a"}},
		{"top n", nil, conf.InferenceSettings{MinConfidence: 0, TopN: 2}, []string{"B_b", "D_d"}},
		{"species list", map[string]struct{}{"A_a": {}, "C_c": {}}, conf.InferenceSettings{MinConfidence: 0.2}, []string{"A_a"}},
		{"nothing passes", nil, conf.InferenceSettings{MinConfidence: 0.95}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NewSelector(labels, tt.species, tt.settings).Select(scores)
			require.NoError(t, err)
			var names []string
			for _, r := range got {
				names = append(names, r.Species)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestSelectorLabelMismatch(t *testing.T) {
	t.Parallel()

	_, err := NewSelector([]string{"A_a"}, nil, conf.InferenceSettings{}).Select([]float32{0.1, 0.2})
	require.Error(t, err)
	assert.True(t, errors.IsInferenceError(err))
}

func TestSortResultsStable(t *testing.T) {
	t.Parallel()

	results := []Result{{"x", 0.5}, {"y", 0.7}, {"z", 0.5}}
	sortResults(results)
	assert.Equal(t, []Result{{"y", 0.7}, {"x", 0.5}, {"z", 0.5}}, results)
}

func TestLabelsAndCodes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	labelPath := filepath.Join(dir, "labels.txt")
	require.NoError(t, os.WriteFile(labelPath,
		[]byte("Turdus merula_Eurasian Blackbird\n\nParus major_Great Tit\n"), 0o600))
	codesPath := filepath.Join(dir, "codes.json")
	require.NoError(t, os.WriteFile(codesPath,
		[]byte(`{"Turdus merula": "eurbla", "Bogus": 7}`), 0o600))

	labels, err := LoadLabels(labelPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"Turdus merula_Eurasian Blackbird", "Parus major_Great Tit"}, labels)

	species, err := LoadSpeciesList(labelPath)
	require.NoError(t, err)
	assert.Len(t, species, 2)

	none, err := LoadSpeciesList("")
	require.NoError(t, err)
	assert.Nil(t, none)

	codes, err := LoadCodes(codesPath)
	require.NoError(t, err)
	assert.Equal(t, "eurbla", codes.Lookup("Turdus merula"))
	assert.Equal(t, "Parus major", codes.Lookup("Parus major"))
	assert.NotContains(t, codes, "Bogus")

	_, err = LoadLabels(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)

	_, err = ParseCodes([]byte("{not json"))
	require.Error(t, err)
}

func TestSplitLabel(t *testing.T) {
	t.Parallel()

	sci, common := SplitLabel("Strix aluco_Tawny Owl")
	assert.Equal(t, "Strix aluco", sci)
	assert.Equal(t, "Tawny Owl", common)

	sci, common = SplitLabel("Engine_Noise_Extra")
	assert.Equal(t, "Engine", sci)
	assert.Equal(t, "Noise_Extra", common)

	sci, common = SplitLabel("Human")
	assert.Equal(t, "Human", sci)
	assert.Equal(t, "Human", common)
}

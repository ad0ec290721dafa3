package analysis

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-batch/internal/birdnet"
	"github.com/tphakala/birdnet-batch/internal/datastore"
	"github.com/tphakala/birdnet-batch/internal/errors"
)

func TestRunEmbeddingExtraction(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := touchAudio(t, dir, "a.wav", "b.wav")
	reader := newFakeReader()
	reader.lengths["b.wav"] = 7.5 // last window padded

	s := testSettings(t)
	s.Embeddings.FileOutput = filepath.Join(t.TempDir(), "vectors.csv")
	store := datastore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	run, err := RunEmbeddingExtraction(t.Context(), dir, EmbeddingOptions{
		Settings: s,
		Reader:   reader,
		Embedder: timeEmbedder(),
		Store:    store,
	})
	require.NoError(t, err)

	var results []EmbeddingResult
	for r := range run.Results() {
		results = append(results, r)
	}
	require.NoError(t, run.Err())

	// 4 windows of a, 3 of b
	require.Len(t, results, 7)
	for _, r := range results {
		assert.NotEmpty(t, r.ID)
		assert.InDelta(t, r.Range.Start, r.Embedding[1], 1e-4)
	}
	count, err := store.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	var bWindows []EmbeddingResult
	for _, r := range results {
		if r.Path == files[1] {
			bWindows = append(bWindows, r)
		}
	}
	slices.SortFunc(bWindows, func(x, y EmbeddingResult) int { return x.ChunkIndex - y.ChunkIndex })
	require.Len(t, bWindows, 3)
	assert.InDelta(t, 7.5, bWindows[2].Range.End, 1e-9)

	f, err := os.Open(s.Embeddings.FileOutput)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 8)
	assert.Equal(t, []string{"File", "Start (s)", "End (s)", "Embedding"}, rows[0])
	assert.Len(t, strings.Split(rows[1][3], ";"), 2)
}

func TestRunEmbeddingExtractionWithoutStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := touchAudio(t, dir, "a.wav")[0]

	run, err := RunEmbeddingExtraction(t.Context(), path, EmbeddingOptions{
		Settings: testSettings(t),
		Reader:   newFakeReader(),
		Embedder: timeEmbedder(),
	})
	require.NoError(t, err)

	n := 0
	for r := range run.Results() {
		assert.Empty(t, r.ID)
		n++
	}
	require.NoError(t, run.Err())
	assert.Equal(t, 4, n)
}

func TestRunEmbeddingExtractionValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := touchAudio(t, dir, "a.wav")[0]
	s := testSettings(t)
	s.Embeddings.BatchSize = 0

	_, err := RunEmbeddingExtraction(t.Context(), path, EmbeddingOptions{
		Settings: s,
		Reader:   newFakeReader(),
		Embedder: timeEmbedder(),
	})
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))

	_, err = RunEmbeddingExtraction(t.Context(), path, EmbeddingOptions{Settings: testSettings(t), Reader: newFakeReader()})
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

// seedStore holds one window of early.wav pointing east and one of
// late.wav pointing north.
func seedStore(t *testing.T, dir string) datastore.VectorStore {
	t.Helper()
	store := datastore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	seed := []struct {
		name string
		vec  []float32
	}{
		{"early.wav", []float32{1, 0}},
		{"late.wav", []float32{0, 1}},
	}
	for _, sd := range seed {
		_, err := store.Insert(t.Context(), sd.vec, datastore.Metadata{
			Source: filepath.Join(dir, sd.name),
			End:    3,
		})
		require.NoError(t, err)
	}
	return store
}

// constantEmbedder returns vec for every window.
func constantEmbedder(vec ...float32) birdnet.EmbedderFunc {
	return func(_ context.Context, samples [][]float32) ([][]float32, error) {
		out := make([][]float32, len(samples))
		for i := range out {
			out[i] = slices.Clone(vec)
		}
		return out, nil
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	query := touchAudio(t, dir, "query.wav")[0]
	store := seedStore(t, dir)

	tests := []struct {
		name   string
		vec    []float32
		metric string
		k      int
		want   []string
	}{
		{"cosine nearest", []float32{1, 0.1}, "cosine", 1, []string{"early.wav"}},
		{"cosine ranked", []float32{0.2, 1}, "cosine", 2, []string{"late.wav", "early.wav"}},
		{"euclidean ascending", []float32{0.1, 0.9}, "euclidean", 2, []string{"late.wav", "early.wav"}},
		{"default k and metric", []float32{1, 0}, "", 0, []string{"early.wav", "late.wav"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			matches, err := Search(t.Context(), query, SearchOptions{
				Settings: testSettings(t),
				Reader:   newFakeReader(),
				Embedder: constantEmbedder(tt.vec...),
				Store:    store,
				K:        tt.k,
				Metric:   tt.metric,
			})
			require.NoError(t, err)

			got := make([]string, len(matches))
			for i, m := range matches {
				got[i] = filepath.Base(m.Source)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearchAveragesWindows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	query := touchAudio(t, dir, "query.wav")[0]
	store := datastore.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	// windows start at 0, 3, 6 and 9 s, so the mean vector is (1, 4.5)
	_, err := store.Insert(t.Context(), []float32{1, 4.5}, datastore.Metadata{Source: "mean.wav"})
	require.NoError(t, err)
	_, err = store.Insert(t.Context(), []float32{1, 0}, datastore.Metadata{Source: "first.wav"})
	require.NoError(t, err)

	matches, err := Search(t.Context(), query, SearchOptions{
		Settings: testSettings(t),
		Reader:   newFakeReader(),
		Embedder: timeEmbedder(),
		Store:    store,
		K:        1,
		Metric:   "euclidean",
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "mean.wav", matches[0].Source)
	assert.InDelta(t, 0, matches[0].Score, 1e-6)
}

func TestSearchWritesSnippets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	out := filepath.Join(t.TempDir(), "snippets")
	query := touchAudio(t, dir, "query.wav")[0]
	store := seedStore(t, dir)

	matches, err := Search(t.Context(), query, SearchOptions{
		Settings: testSettings(t),
		Reader:   newFakeReader(),
		Embedder: constantEmbedder(1, 0),
		Store:    store,
		K:        2,
		OutDir:   out,
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)

	written, err := filepath.Glob(filepath.Join(out, "*.wav"))
	require.NoError(t, err)
	require.Len(t, written, 2)
	assert.Contains(t, written, filepath.Join(out, "1.0000_early_0.0_3.0.wav"))

	f, err := os.Open(filepath.Join(out, "1.0000_early_0.0_3.0.wav"))
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint32(testRate), dec.SampleRate)
	assert.Equal(t, uint16(1), dec.NumChans)
}

func TestSearchEmptyQuery(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	query := touchAudio(t, dir, "silence.wav")[0]
	reader := newFakeReader()
	reader.lengths["silence.wav"] = 0

	_, err := Search(t.Context(), query, SearchOptions{
		Settings: testSettings(t),
		Reader:   reader,
		Embedder: constantEmbedder(1, 0),
		Store:    seedStore(t, dir),
	})
	require.Error(t, err)
	assert.True(t, errors.IsAudioReadError(err))
}

func TestSearchRequiresStore(t *testing.T) {
	t.Parallel()

	_, err := Search(t.Context(), "query.wav", SearchOptions{
		Settings: testSettings(t),
		Reader:   newFakeReader(),
		Embedder: constantEmbedder(1, 0),
	})
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

// flakyStore fails the insert of one file and can run a hook before each
// insert.
type flakyStore struct {
	*datastore.MemoryStore
	failSource string
	before     func()
}

func (s *flakyStore) InsertBatch(ctx context.Context, records []datastore.Record) ([]string, error) {
	if s.before != nil {
		s.before()
	}
	if len(records) > 0 && filepath.Base(records[0].Source) == s.failSource {
		return nil, errors.New(fmt.Errorf("disk full")).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return s.MemoryStore.InsertBatch(ctx, records)
}

func TestRunEmbeddingExtractionStoreFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	touchAudio(t, dir, "a.wav", "b.wav")
	s := testSettings(t)
	s.Workers = 1
	s.Embeddings.FileOutput = filepath.Join(t.TempDir(), "vectors.csv")
	store := &flakyStore{MemoryStore: datastore.NewMemoryStore(), failSource: "b.wav"}

	run, err := RunEmbeddingExtraction(t.Context(), dir, EmbeddingOptions{
		Settings: s,
		Reader:   newFakeReader(),
		Embedder: timeEmbedder(),
		Store:    store,
	})
	require.NoError(t, err)

	failures := run.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, filepath.Join(dir, "b.wav"), failures[0].Path)

	// only the four windows of a.wav are stored and exported
	count, err := store.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	hits, err := store.Search(t.Context(), []float32{1, 0}, 10, datastore.MetricEuclidean)
	require.NoError(t, err)
	for _, h := range hits {
		assert.Equal(t, "a.wav", filepath.Base(h.Source))
	}

	f, err := os.Open(s.Embeddings.FileOutput)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestRunEmbeddingExtractionCancelDuringStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := touchAudio(t, dir, "a.wav")[0]
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	store := &flakyStore{MemoryStore: datastore.NewMemoryStore(), before: cancel}

	run, err := RunEmbeddingExtraction(ctx, path, EmbeddingOptions{
		Settings: testSettings(t),
		Reader:   newFakeReader(),
		Embedder: timeEmbedder(),
		Store:    store,
	})
	require.NoError(t, err)

	require.ErrorIs(t, run.Err(), errors.ErrAnalysisCanceled)
	assert.Empty(t, run.Failures())

	// a file whose extraction finished is stored whole
	count, err := store.Count(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

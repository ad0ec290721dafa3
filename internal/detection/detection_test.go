package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-batch/internal/errors"
)

func TestTimeRangeKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		r    TimeRange
		want string
	}{
		{TimeRange{0, 3}, "0.0-3.0"},
		{TimeRange{1.5, 4.5}, "1.5-4.5"},
		{TimeRange{117, 120}, "117.0-120.0"},
		{TimeRange{0.33, 3.33}, "0.33-3.33"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.r.Key())
	}
}

func TestParseKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key     string
		want    TimeRange
		wantErr bool
	}{
		{key: "0.0-3.0", want: TimeRange{0, 3}},
		{key: "12.25-15.25", want: TimeRange{12.25, 15.25}},
		{key: "3-6", want: TimeRange{3, 6}},
		{key: "3.0", wantErr: true},
		{key: "a-b", wantErr: true},
		{key: "3.0-x", wantErr: true},
		{key: "5.0-3.0", wantErr: true},
		{key: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Parallel()
			got, err := ParseKey(tt.key)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrMalformedKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.Key()))
		})
	}
}

func mustParse(t *testing.T, key string) TimeRange {
	t.Helper()
	r, err := ParseKey(key)
	require.NoError(t, err)
	return r
}

func TestSetInsertionOrder(t *testing.T) {
	t.Parallel()

	s := NewSet()
	s.Add(TimeRange{6, 9}, "B", 0.5)
	s.Add(TimeRange{0, 3}, "A", 0.9)
	s.Add(TimeRange{6, 9}, "C", 0.4)
	require.NoError(t, s.AddKey("3.0-6.0", "A", 0.7))

	assert.Equal(t, []string{"6.0-9.0", "0.0-3.0", "3.0-6.0"}, s.Keys())
	assert.Equal(t, 4, s.Len())
	assert.Equal(t, []Prediction{{"B", 0.5, 1}, {"C", 0.4, 1}}, s.Get(TimeRange{6, 9}))

	sorted := s.Sorted()
	require.Len(t, sorted, 4)
	assert.Equal(t, "A", sorted[0].Label)
	assert.Equal(t, "B", sorted[2].Label)
	assert.Equal(t, "C", sorted[3].Label)
}

func TestSetAddKeyRejectsMalformed(t *testing.T) {
	t.Parallel()

	s := NewSet()
	err := s.AddKey("nonsense", "A", 0.5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedKey))
	assert.True(t, s.Empty())
}

func TestSetGetReturnsCopy(t *testing.T) {
	t.Parallel()

	s := NewSet()
	s.Add(TimeRange{0, 3}, "A", 0.5)
	got := s.Get(TimeRange{0, 3})
	got[0].Confidence = 1

	assert.InDelta(t, 0.5, s.Get(TimeRange{0, 3})[0].Confidence, 0)
}

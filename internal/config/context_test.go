package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-batch/internal/analysis"
	"github.com/tphakala/birdnet-batch/internal/errors"
)

func TestInitFlagOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
window:
  overlap: 1.5
inference:
  minconfidence: 0.4
metrics:
  enabled: true
  textfile: `+filepath.Join(dir, "birdnet.prom")+`
`), 0o644))

	ctx := NewContext()
	ctx.ConfigFile = cfg

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Float64("min-conf", ctx.Viper.GetFloat64("inference.minconfidence"), "")
	require.NoError(t, ctx.BindFlags(cmd, map[string]string{"min-conf": "inference.minconfidence"}))
	require.NoError(t, cmd.Flags().Parse([]string{"--min-conf", "0.7"}))

	require.NoError(t, ctx.Init())
	assert.InDelta(t, 1.5, ctx.Settings.Window.Overlap, 0)
	assert.InDelta(t, 0.7, ctx.Settings.Inference.MinConfidence, 0)
	require.NotNil(t, ctx.Metrics)

	require.NoError(t, ctx.Close())
	assert.FileExists(t, filepath.Join(dir, "birdnet.prom"))
}

func TestInitRejectsInvalidConfig(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("window:\n  overlap: 5\n"), 0o644))

	ctx := NewContext()
	ctx.ConfigFile = cfg
	err := ctx.Init()
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestBindFlagsUnknownFlag(t *testing.T) {
	t.Parallel()

	ctx := NewContext()
	err := ctx.BindFlags(&cobra.Command{Use: "test"}, map[string]string{"nope": "workers"})
	require.Error(t, err)
}

func TestReportFailures(t *testing.T) {
	t.Parallel()

	failures := []analysis.FileError{
		{Path: "a.wav", Reason: "unreadable audio", Err: errors.NewStd("bad header")},
	}
	joined := errors.Join(&failures[0], errors.ErrAnalysisCanceled)

	var buf bytes.Buffer
	err := ReportFailures(&buf, failures, joined)
	require.Error(t, err)
	assert.Equal(t, "failed: a.wav: unreadable audio: bad header\n", buf.String())
	assert.Contains(t, err.Error(), "1 file(s) failed")
	require.ErrorIs(t, err, errors.ErrAnalysisCanceled)

	buf.Reset()
	require.NoError(t, ReportFailures(&buf, nil, nil))
	assert.Empty(t, buf.String())
}

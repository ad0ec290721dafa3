// Package cmd wires the command line interface.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-batch/cmd/analyze"
	"github.com/tphakala/birdnet-batch/cmd/embeddings"
	"github.com/tphakala/birdnet-batch/cmd/search"
	"github.com/tphakala/birdnet-batch/internal/buildinfo"
	"github.com/tphakala/birdnet-batch/internal/config"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *config.Context) (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		Use:           "birdnet-batch",
		Short:         "Batch species detection and embedding search for audio recordings",
		Version:       buildinfo.Current().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, ctx); err != nil {
		return nil, err
	}

	subcommands := []func(*config.Context) (*cobra.Command, error){
		analyze.Command,
		embeddings.Command,
		search.Command,
	}
	for _, newCmd := range subcommands {
		sub, err := newCmd(ctx)
		if err != nil {
			return nil, err
		}
		rootCmd.AddCommand(sub)
	}

	// settings are loaded after flag parsing so flags take precedence
	rootCmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		return ctx.Init()
	}

	return rootCmd, nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, ctx *config.Context) error {
	v := ctx.Viper
	flags := rootCmd.PersistentFlags()

	flags.StringVarP(&ctx.ConfigFile, "config", "c", "", "Path to config file (default searches ., ~/.config/birdnet-batch, /etc/birdnet-batch)")
	flags.Int("workers", v.GetInt("workers"), "Files analyzed concurrently, 0 picks a value from the CPU")
	flags.Int("threads", v.GetInt("inference.threads"), "Interpreter threads, 0 picks a value from the CPU")
	flags.Float64("overlap", v.GetFloat64("window.overlap"), "Overlap of consecutive windows in seconds")
	flags.Float64("speed", v.GetFloat64("window.speed"), "Playback speed factor applied before windowing")
	flags.Float64("fmin", v.GetFloat64("window.fmin"), "Bandpass low cutoff in Hz")
	flags.Float64("fmax", v.GetFloat64("window.fmax"), "Bandpass high cutoff in Hz")
	flags.String("log-level", v.GetString("logging.default_level"), "Log level: trace, debug, info, warn, error")
	flags.Bool("metrics", v.GetBool("metrics.enabled"), "Collect Prometheus metrics")
	flags.String("metrics-file", v.GetString("metrics.textfile"), "Write metrics to this node exporter textfile at exit")

	return ctx.BindFlags(rootCmd, map[string]string{
		"workers":      "workers",
		"threads":      "inference.threads",
		"overlap":      "window.overlap",
		"speed":        "window.speed",
		"fmin":         "window.fmin",
		"fmax":         "window.fmax",
		"log-level":    "logging.default_level",
		"metrics":      "metrics.enabled",
		"metrics-file": "metrics.textfile",
	})
}

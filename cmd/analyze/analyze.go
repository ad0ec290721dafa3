// Package analyze implements the analyze command.
package analyze

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-batch/internal/analysis"
	"github.com/tphakala/birdnet-batch/internal/config"
)

// Command creates the analyze command.
func Command(ctx *config.Context) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "analyze [path]",
		Short: "Detect species in an audio file or every audio file below a directory",
		Long: "Slices audio into windows, classifies every window and writes the merged detections " +
			"as selection tables, CSV, Kaleidoscope or Audacity labels.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, ctx, args[0])
		},
	}

	if err := setupFlags(cmd, ctx); err != nil {
		return nil, err
	}
	return cmd, nil
}

func setupFlags(cmd *cobra.Command, ctx *config.Context) error {
	v := ctx.Viper
	flags := cmd.Flags()

	flags.StringP("model", "m", v.GetString("inference.modelpath"), "Path to the TFLite classifier")
	flags.StringP("labels", "l", v.GetString("inference.labelpath"), "Path to the label file")
	flags.String("species-list", v.GetString("inference.specieslistpath"), "Only report species in this list")
	flags.String("codes", v.GetString("inference.codespath"), "JSON file mapping scientific names to eBird codes")
	flags.IntP("batch-size", "b", v.GetInt("inference.batchsize"), "Windows per model invocation")
	flags.Float64P("sensitivity", "s", v.GetFloat64("inference.sensitivity"), "Sigmoid sensitivity between 0.5 and 1.5")
	flags.Float64P("min-conf", "t", v.GetFloat64("inference.minconfidence"), "Minimum confidence of a reported detection")
	flags.Int("top-n", v.GetInt("inference.topn"), "Report at most N species per window, 0 disables")
	flags.Int("merge", v.GetInt("merge.maxconsecutive"), "Merge up to N consecutive detections, negative for no limit")
	flags.StringP("output", "o", v.GetString("output.dir"), "Output directory, defaults to next to the input")
	flags.StringSliceP("format", "f", v.GetStringSlice("output.types"), "Output formats: table, csv, kaleidoscope, audacity")
	flags.Bool("combine", v.GetBool("output.combine"), "Also write run-wide combined result files")
	flags.Bool("skip-existing", v.GetBool("output.skipexisting"), "Skip files whose results already exist")
	flags.StringSlice("columns", v.GetStringSlice("output.additionalcolumns"), "Additional CSV columns")

	return ctx.BindFlags(cmd, map[string]string{
		"model":         "inference.modelpath",
		"labels":        "inference.labelpath",
		"species-list":  "inference.specieslistpath",
		"codes":         "inference.codespath",
		"batch-size":    "inference.batchsize",
		"sensitivity":   "inference.sensitivity",
		"min-conf":      "inference.minconfidence",
		"top-n":         "inference.topn",
		"merge":         "merge.maxconsecutive",
		"output":        "output.dir",
		"format":        "output.types",
		"combine":       "output.combine",
		"skip-existing": "output.skipexisting",
		"columns":       "output.additionalcolumns",
	})
}

func run(cmd *cobra.Command, ctx *config.Context, input string) error {
	opts, model, err := ctx.DetectionOptions()
	if err != nil {
		return err
	}
	defer model.Close()

	r, err := analysis.RunDetection(cmd.Context(), input, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	files, detections := 0, 0
	for res := range r.Results() {
		files++
		detections += res.Detections.Len()
		fmt.Fprintf(out, "%s: %d detections\n", res.Path, res.Detections.Len())
	}
	if skipped := r.Skipped(); len(skipped) > 0 {
		fmt.Fprintf(out, "skipped %d file(s) with existing results\n", len(skipped))
	}
	fmt.Fprintf(out, "analyzed %d file(s), %d detections\n", files, detections)

	return config.ReportFailures(cmd.ErrOrStderr(), r.Failures(), r.Err())
}

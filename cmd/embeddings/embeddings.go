// Package embeddings implements the embeddings command.
package embeddings

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-batch/internal/analysis"
	"github.com/tphakala/birdnet-batch/internal/config"
	"github.com/tphakala/birdnet-batch/internal/logger"
)

// Command creates the embeddings command.
func Command(ctx *config.Context) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:   "embeddings [path]",
		Short: "Extract window embeddings into the vector store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, ctx, args[0])
		},
	}

	v := ctx.Viper
	flags := cmd.Flags()
	flags.StringP("model", "m", v.GetString("inference.embeddingmodelpath"), "Path to the TFLite embedding model")
	flags.String("backend", v.GetString("embeddings.backend"), "Vector store backend: memory, sqlite, badger")
	flags.String("db", v.GetString("embeddings.path"), "Vector store location")
	flags.IntP("batch-size", "b", v.GetInt("embeddings.batchsize"), "Windows per model invocation")
	flags.String("file-output", v.GetString("embeddings.fileoutput"), "Also write every vector to this CSV file")

	if err := ctx.BindFlags(cmd, map[string]string{
		"model":       "inference.embeddingmodelpath",
		"backend":     "embeddings.backend",
		"db":          "embeddings.path",
		"batch-size":  "embeddings.batchsize",
		"file-output": "embeddings.fileoutput",
	}); err != nil {
		return nil, err
	}
	return cmd, nil
}

func run(cmd *cobra.Command, ctx *config.Context, input string) error {
	model, err := ctx.Embedder()
	if err != nil {
		return err
	}
	defer model.Close()

	store, err := ctx.Store()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			config.GetLogger().Warn("error closing vector store", logger.Error(cerr))
		}
	}()

	r, err := analysis.RunEmbeddingExtraction(cmd.Context(), input, analysis.EmbeddingOptions{
		Settings: ctx.Settings,
		Reader:   ctx.Reader(),
		Embedder: model,
		Store:    store,
		Metrics:  ctx.Metrics,
	})
	if err != nil {
		return err
	}

	files := make(map[string]struct{})
	vectors := 0
	for res := range r.Results() {
		files[res.Path] = struct{}{}
		vectors++
	}

	total, err := store.Count(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stored %d embeddings from %d file(s), store holds %d\n", vectors, len(files), total)

	return config.ReportFailures(cmd.ErrOrStderr(), r.Failures(), r.Err())
}

// Package search implements the search command.
package search

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/birdnet-batch/internal/analysis"
	"github.com/tphakala/birdnet-batch/internal/config"
	"github.com/tphakala/birdnet-batch/internal/detection"
	"github.com/tphakala/birdnet-batch/internal/logger"
)

// Command creates the search command.
func Command(ctx *config.Context) (*cobra.Command, error) {
	var outDir string

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Find the stored windows most similar to a query recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, ctx, args[0], outDir)
		},
	}

	v := ctx.Viper
	flags := cmd.Flags()
	flags.StringP("model", "m", v.GetString("inference.embeddingmodelpath"), "Path to the TFLite embedding model")
	flags.String("backend", v.GetString("embeddings.backend"), "Vector store backend: memory, sqlite, badger")
	flags.String("db", v.GetString("embeddings.path"), "Vector store location")
	flags.IntP("results", "k", v.GetInt("embeddings.results"), "Number of matches to return")
	flags.String("metric", v.GetString("embeddings.metric"), "Similarity metric: cosine, dot, euclidean")
	flags.StringVarP(&outDir, "output", "o", "", "Write the audio of every match to this directory")

	if err := ctx.BindFlags(cmd, map[string]string{
		"model":   "inference.embeddingmodelpath",
		"backend": "embeddings.backend",
		"db":      "embeddings.path",
		"results": "embeddings.results",
		"metric":  "embeddings.metric",
	}); err != nil {
		return nil, err
	}
	return cmd, nil
}

func run(cmd *cobra.Command, ctx *config.Context, query, outDir string) error {
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

	matches, err := analysis.Search(cmd.Context(), query, analysis.SearchOptions{
		Settings: ctx.Settings,
		Reader:   ctx.Reader(),
		Embedder: model,
		Store:    store,
		OutDir:   outDir,
		Metrics:  ctx.Metrics,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, m := range matches {
		fmt.Fprintf(out, "%d\t%.4f\t%s\t%s-%s\n", i+1, m.Score, m.Source,
			detection.FormatSeconds(m.Start), detection.FormatSeconds(m.End))
	}
	return nil
}

package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/voyago"
)

type globalFlags struct {
	verbose   bool
	rateLimit int
}

// NewRootCmd returns the voyago command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "voyago",
		Short: "Build and query HNSW vector indexes",
		Long: `voyago - build, query and inspect approximate nearest neighbor indexes.

Index locations:
  ./products.voy                       local file
  s3://bucket/indexes/products.voy     Amazon S3 (AWS default credential chain)
  minio://host:9000/bucket/products.voy MinIO (MINIO_ACCESS_KEY, MINIO_SECRET_KEY)

Set VOYAGO_DDB_TABLE to publish S3 writes through a DynamoDB commit table.

Examples:
  voyago build --dim 5 --metric euclidean --input items.jsonl --out index.voy
  voyago query --index index.voy --vector 0.85,0.6,102.5,0.625,0.125 --k 3
  voyago stats --index index.voy`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().IntVar(&g.rateLimit, "rate-limit", 0, "limit remote transfers to this many bytes per second (0 = unlimited)")

	root.AddCommand(
		newBuildCmd(g),
		newQueryCmd(g),
		newStatsCmd(g),
	)
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func (g *globalFlags) logger(cmd *cobra.Command) *voyago.Logger {
	level := slog.LevelWarn
	if g.verbose {
		level = slog.LevelDebug
	}
	return voyago.NewLogger(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

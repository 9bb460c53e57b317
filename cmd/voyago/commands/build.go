package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/voyago"
	"github.com/hupe1980/voyago/codec"
	"github.com/hupe1980/voyago/distance"
	"github.com/hupe1980/voyago/persistence"
)

type buildFlags struct {
	dim            int
	metric         string
	input          string
	out            string
	m              int
	efConstruction int
	compression    string
	seed           int64
}

func newBuildCmd(g *globalFlags) *cobra.Command {
	f := &buildFlags{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an index from JSON lines",
		Long: `Build an index from JSON lines of the form {"id": 0, "vector": [..]}.

The id field is optional; entries without one get the smallest free id.
When --dim is omitted the dimension of the first vector is used.
Use --input - to read from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, g, f)
		},
	}

	cmd.Flags().IntVar(&f.dim, "dim", 0, "vector dimension (default: length of the first vector)")
	cmd.Flags().StringVar(&f.metric, "metric", "euclidean", "distance metric: euclidean, cosine or ip")
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "input JSON lines file, - for stdin")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "index location to write")
	cmd.Flags().IntVar(&f.m, "m", voyago.DefaultM, "edges per node and layer")
	cmd.Flags().IntVar(&f.efConstruction, "ef-construction", voyago.DefaultEFConstruction, "insertion frontier size")
	cmd.Flags().StringVar(&f.compression, "compression", "none", "blob compression: none, lz4 or zstd")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "random seed for reproducible builds (0 = random)")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runBuild(cmd *cobra.Command, g *globalFlags, f *buildFlags) error {
	ctx := cmd.Context()

	metric, err := distance.ParseMetric(f.metric)
	if err != nil {
		return err
	}
	compression, err := persistence.ParseCompression(f.compression)
	if err != nil {
		return err
	}
	loc, err := parseLocation(f.out)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if f.input != "-" {
		file, err := os.Open(f.input)
		if err != nil {
			return err
		}
		defer file.Close()
		in = file
	}

	opts := []voyago.Option{
		voyago.WithM(f.m),
		voyago.WithEFConstruction(f.efConstruction),
		voyago.WithCompression(compression),
		voyago.WithLogger(g.logger(cmd)),
	}
	if f.seed != 0 {
		opts = append(opts, voyago.WithRandomSeed(f.seed))
	}

	var idx *voyago.Index
	if f.dim > 0 {
		if idx, err = voyago.New(f.dim, metric, opts...); err != nil {
			return err
		}
	}

	err = codec.ReadLines(in, codec.Default, func(_ int, r codec.Record) error {
		if idx == nil {
			if idx, err = voyago.New(len(r.Vector), metric, opts...); err != nil {
				return err
			}
		}
		if r.ID != nil {
			return idx.InsertWithID(ctx, *r.ID, r.Vector)
		}
		_, err := idx.Insert(ctx, r.Vector)
		return err
	})
	if err != nil {
		return fmt.Errorf("read %s: %w", f.input, err)
	}
	if idx == nil {
		return fmt.Errorf("read %s: no vectors and no --dim given", f.input)
	}

	store, name, err := loc.open(ctx, g.rateLimit)
	if err != nil {
		return err
	}
	if err := idx.Save(ctx, store, name); err != nil {
		return fmt.Errorf("save %s: %w", f.out, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "built %s: %d vectors, dim %d, metric %s\n",
		f.out, idx.Size(), idx.Dimension(), idx.Metric())
	return nil
}

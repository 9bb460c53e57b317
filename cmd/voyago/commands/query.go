package commands

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/voyago"
	"github.com/hupe1980/voyago/codec"
)

type queryFlags struct {
	index    string
	vector   string
	input    string
	k        int
	ef       int
	format   string
	expected int
}

func newQueryCmd(g *globalFlags) *cobra.Command {
	f := &queryFlags{}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Find the nearest neighbors of one or more vectors",
		Long: `Find the k nearest neighbors of a vector.

Pass a single vector with --vector 0.1,0.2,... or many with --input, a JSON
lines file of {"vector": [..]} records. Results of --input queries carry the
input line number.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runQuery(cmd, g, f)
		},
	}

	cmd.Flags().StringVar(&f.index, "index", "", "index location")
	cmd.Flags().StringVar(&f.vector, "vector", "", "comma separated query vector")
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "JSON lines file of query vectors, - for stdin")
	cmd.Flags().IntVarP(&f.k, "k", "k", 10, "number of neighbors")
	cmd.Flags().IntVar(&f.ef, "ef", 0, "query frontier size (default: the index setting)")
	cmd.Flags().StringVar(&f.format, "format", "text", "output format: text or json")
	cmd.Flags().IntVar(&f.expected, "expect-dim", 0, "reject indexes of any other dimension")
	_ = cmd.MarkFlagRequired("index")
	cmd.MarkFlagsMutuallyExclusive("vector", "input")
	cmd.MarkFlagsOneRequired("vector", "input")

	return cmd
}

func parseVector(s string) ([]float32, error) {
	fields := strings.Split(s, ",")
	out := make([]float32, 0, len(fields))
	for i, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 32)
		if err != nil {
			return nil, fmt.Errorf("vector component %d: %w", i, err)
		}
		out = append(out, float32(v))
	}
	return out, nil
}

type queryLine struct {
	Line    int           `json:"line,omitempty"`
	Matches []codec.Match `json:"matches"`
}

func runQuery(cmd *cobra.Command, g *globalFlags, f *queryFlags) error {
	ctx := cmd.Context()
	if f.format != "text" && f.format != "json" {
		return fmt.Errorf("unsupported format %q", f.format)
	}

	var (
		queries [][]float32
		lines   []int
	)
	if f.vector != "" {
		q, err := parseVector(f.vector)
		if err != nil {
			return err
		}
		queries = append(queries, q)
	} else {
		var in io.Reader = cmd.InOrStdin()
		if f.input != "-" {
			file, err := os.Open(f.input)
			if err != nil {
				return err
			}
			defer file.Close()
			in = file
		}
		err := codec.ReadLines(in, codec.Default, func(line int, r codec.Record) error {
			queries = append(queries, r.Vector)
			lines = append(lines, line)
			return nil
		})
		if err != nil {
			return fmt.Errorf("read %s: %w", f.input, err)
		}
	}

	idx, err := openIndex(cmd, g, f.index, f.expected)
	if err != nil {
		return err
	}

	var qopts []voyago.QueryOption
	if f.ef > 0 {
		qopts = append(qopts, voyago.WithEF(f.ef))
	}
	results, err := idx.QueryBatch(ctx, queries, f.k, qopts...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	lw := codec.NewLineWriter(out, codec.Default)
	for i, res := range results {
		matches := make([]codec.Match, len(res))
		for j, r := range res {
			matches[j] = codec.Match{Rank: j + 1, ID: r.ID, Distance: r.Distance}
		}

		line := 0
		if lines != nil {
			line = lines[i]
		}

		if f.format == "json" {
			if err := lw.Write(queryLine{Line: line, Matches: matches}); err != nil {
				return err
			}
			continue
		}
		if lines != nil {
			fmt.Fprintf(out, "# line %d\n", line)
		}
		for _, m := range matches {
			fmt.Fprintf(out, "%d\t%d\t%g\n", m.Rank, m.ID, m.Distance)
		}
	}
	return nil
}

func openIndex(cmd *cobra.Command, g *globalFlags, raw string, expectedDim int) (*voyago.Index, error) {
	loc, err := parseLocation(raw)
	if err != nil {
		return nil, err
	}
	store, name, err := loc.open(cmd.Context(), g.rateLimit)
	if err != nil {
		return nil, err
	}

	opts := []voyago.Option{voyago.WithLogger(g.logger(cmd))}
	if expectedDim > 0 {
		opts = append(opts, voyago.WithExpectedDimension(expectedDim))
	}
	idx, err := voyago.Open(cmd.Context(), store, name, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", raw, err)
	}
	return idx, nil
}

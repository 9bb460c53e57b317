package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/voyago/codec"
)

func newStatsCmd(g *globalFlags) *cobra.Command {
	var (
		index  string
		format string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print index and graph statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			idx, err := openIndex(cmd, g, index, 0)
			if err != nil {
				return err
			}
			st := idx.Stats()
			out := cmd.OutOrStdout()

			switch format {
			case "json":
				return codec.NewLineWriter(out, codec.Default).Write(st)
			case "text":
			default:
				return fmt.Errorf("unsupported format %q", format)
			}

			fmt.Fprintf(out, "dimension:       %d\n", st.Dimension)
			fmt.Fprintf(out, "metric:          %s\n", st.Metric)
			fmt.Fprintf(out, "M:               %d\n", st.M)
			fmt.Fprintf(out, "efConstruction:  %d\n", st.EFConstruction)
			fmt.Fprintf(out, "live:            %d\n", st.Live)
			fmt.Fprintf(out, "deleted:         %d\n", st.Deleted)
			fmt.Fprintf(out, "entry point:     %d\n", st.EntryPoint)
			fmt.Fprintf(out, "max level:       %d\n", st.MaxLevel)
			if len(st.Levels) == 0 {
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LEVEL\tNODES\tEDGES\tAVG")
			for _, l := range st.Levels {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%.2f\n", l.Level, l.Nodes, l.Connections, l.AvgConnections)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&index, "index", "", "index location")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("index")

	return cmd
}

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/bqs/datarecording"
)

var (
	eventsKind  string
	eventsLimit int
)

var eventsCmd = &cobra.Command{
	Use:   "events <recording.sqlite3>",
	Short: "Print the relation events of a recording.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader, err := datarecording.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		reader.MapTable(datarecording.RelationTable, datarecording.RelationEvent{})

		params := datarecording.QueryParams{
			OrderBy: "rowid",
			Limit:   eventsLimit,
		}

		if eventsKind != "" {
			params.Where = "Event = ?"
			params.Args = []any{eventsKind}
		}

		results, total, err := reader.Query(cmd.Context(),
			datarecording.RelationTable, params)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()

		for _, r := range results {
			evt := r.(*datarecording.RelationEvent)

			fields := []string{
				time.Unix(0, evt.Time).Format(time.RFC3339Nano),
				fmt.Sprintf("p%d", evt.ResIndex),
				evt.Event,
				evt.Src,
			}

			if evt.Dst != "" {
				fields = append(fields, "-> "+evt.Dst)
			}

			if evt.Detail != "" {
				fields = append(fields, "("+evt.Detail+")")
			}

			fmt.Fprintln(out, strings.Join(fields, " "))
		}

		fmt.Fprintf(out, "%d of %d events\n", len(results), total)

		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsKind, "event", "",
		"only print events of this kind (Bind, Unbind, Abnormal, Order)")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 0,
		"print at most this many events, 0 prints all")

	rootCmd.AddCommand(eventsCmd)
}

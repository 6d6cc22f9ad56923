// Package events implements the event inspection commands.
package events

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/platewatch/platewatch/internal/conf"
	"github.com/platewatch/platewatch/internal/datastore"
)

type searchOptions struct {
	mode   string
	value  string
	start  string
	end    string
	limit  int
	asJSON bool
}

// Command creates the events command and its subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect recorded recognition events",
	}
	cmd.AddCommand(searchCommand(settings))
	return cmd
}

func searchCommand(settings *conf.Settings) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search recorded recognition events",
		Long: `Search recorded recognition events, newest first.

Modes:
  license_plate  --value is a case-insensitive part of the plate
  date           --value is a local date, YYYY-MM-DD
  datetime       --start and --end bound the capture time, both inclusive`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := opts.query()
			if err != nil {
				return err
			}

			store, err := datastore.Connect(settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			events, err := store.QueryEvents(cmd.Context(), q)
			if err != nil {
				return err
			}

			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPLATE\tCAPTURED\tSOURCE\tMATCHED\tIMAGE")
			for _, e := range events {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%t\t%s\n",
					e.ID, e.LicensePlate, e.CapturedAt.Local().Format(time.DateTime), e.SourceID, e.Matched, e.ImagePath)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&opts.mode, "mode", string(datastore.FilterLicensePlate), "Filter mode: license_plate, date or datetime")
	cmd.Flags().StringVar(&opts.value, "value", "", "Filter value for license_plate and date modes")
	cmd.Flags().StringVar(&opts.start, "start", "", "Range start for datetime mode, RFC 3339 or YYYY-MM-DDTHH:MM")
	cmd.Flags().StringVar(&opts.end, "end", "", "Range end for datetime mode, RFC 3339 or YYYY-MM-DDTHH:MM")
	cmd.Flags().IntVar(&opts.limit, "limit", 50, "Max events to print, 0 = all")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print events as JSON")

	return cmd
}

func (o searchOptions) query() (datastore.EventQuery, error) {
	if o.limit < 0 {
		return datastore.EventQuery{}, fmt.Errorf("limit must not be negative")
	}
	start, err := datastore.ParseTimeBound(o.start)
	if err != nil {
		return datastore.EventQuery{}, fmt.Errorf("invalid --start: %w", err)
	}
	end, err := datastore.ParseTimeBound(o.end)
	if err != nil {
		return datastore.EventQuery{}, fmt.Errorf("invalid --end: %w", err)
	}
	return datastore.EventQuery{
		Mode:  datastore.FilterMode(o.mode),
		Value: o.value,
		Start: start,
		End:   end,
		Limit: o.limit,
	}, nil
}

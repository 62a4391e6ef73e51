package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tradecal/internal/calendar"
	"tradecal/internal/domain"
	"tradecal/internal/pricing"
)

func newPriceCmd() *cobra.Command {
	var (
		symbols  []string
		fieldStr string
		atStr    string
	)

	cmd := &cobra.Command{
		Use:   "price",
		Short: "Resolve a field of one or more assets at a point in time",
		Long: `Resolve open, high, low, close, volume, price or last_traded at --at.

The price field falls back to the nearest earlier close and adjusts it for
splits and dividends in between. Raw bar fields are never filled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(symbols) == 0 {
				return fmt.Errorf("missing --symbol")
			}
			field, err := domain.ParseField(fieldStr)
			if err != nil {
				return err
			}
			if atStr == "" {
				return fmt.Errorf("missing --at")
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			at, err := parseAt(atStr, app.Calendar.Location())
			if err != nil {
				return err
			}

			queries := make([]pricing.Query, len(symbols))
			for i, s := range symbols {
				queries[i] = pricing.Query{Asset: s, Field: field, At: at}
			}
			results := app.Resolver.ResolveBatch(cmd.Context(), queries, app.Config.Pricing.BatchWorkers)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tFIELD\tVALUE")
			var failed error
			for _, r := range results {
				switch {
				case errors.Is(r.Err, pricing.ErrNoPriceData):
					fmt.Fprintf(w, "%s\t%s\tno data\n", r.Query.Asset, field)
				case r.Err != nil:
					fmt.Fprintf(w, "%s\t%s\terror: %v\n", r.Query.Asset, field, r.Err)
					failed = errors.Join(failed, r.Err)
				default:
					fmt.Fprintf(w, "%s\t%s\t%s\n", r.Query.Asset, field, r.Value)
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}
			return failed
		},
	}

	cmd.Flags().StringSliceVar(&symbols, "symbol", nil, "asset symbol, repeatable or comma separated")
	cmd.Flags().StringVar(&fieldStr, "field", string(domain.FieldPrice), "open, high, low, close, volume, price or last_traded")
	cmd.Flags().StringVar(&atStr, "at", "", "YYYY-MM-DD, \"YYYY-MM-DD HH:MM\" in the calendar's zone, or RFC 3339")
	return cmd
}

// parseAt reads a query instant. Dates and wall-clock times without an
// offset are taken in loc.
func parseAt(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(calendar.DateLayout, s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("bad --at %q", s)
}

func init() {
	rootCmd.AddCommand(newPriceCmd())
}

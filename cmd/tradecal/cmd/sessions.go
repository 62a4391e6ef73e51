package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tradecal/internal/calendar"
)

func newSessionsCmd() *cobra.Command {
	var fromStr, toStr string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List trading sessions with their open, close and minute count",
		RunE: func(cmd *cobra.Command, args []string) error {
			var from, to time.Time
			var err error
			if fromStr != "" {
				if from, err = calendar.ParseDay(fromStr); err != nil {
					return fmt.Errorf("bad --from: %w", err)
				}
			}
			if toStr != "" {
				if to, err = calendar.ParseDay(toStr); err != nil {
					return fmt.Errorf("bad --to: %w", err)
				}
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			cal := app.Calendar
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tOPEN\tCLOSE\tMINUTES")
			for _, s := range cal.Sessions() {
				if (!from.IsZero() && s.Date.Before(from)) || (!to.IsZero() && s.Date.After(to)) {
					continue
				}
				minutes, _ := cal.Minutes(s.Date)
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n",
					s.Date.Format(calendar.DateLayout),
					s.Open.Format("15:04"),
					s.Close.Format("15:04"),
					len(minutes))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&fromStr, "from", "", "first session date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "last session date (YYYY-MM-DD)")
	return cmd
}

func init() {
	rootCmd.AddCommand(newSessionsCmd())
}

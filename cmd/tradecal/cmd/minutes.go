package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tradecal/internal/calendar"
)

func newMinutesCmd() *cobra.Command {
	var dateStr string

	cmd := &cobra.Command{
		Use:   "minutes",
		Short: "Print the trading minutes of one session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dateStr == "" {
				return fmt.Errorf("missing --date (YYYY-MM-DD)")
			}
			date, err := calendar.ParseDay(dateStr)
			if err != nil {
				return fmt.Errorf("bad --date: %w", err)
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			minutes, ok := app.Calendar.Minutes(date)
			if !ok {
				return fmt.Errorf("%s is not a session of %s", dateStr, app.Calendar.Name())
			}
			out := cmd.OutOrStdout()
			for _, m := range minutes {
				fmt.Fprintln(out, m.Format("15:04"))
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d minutes\n", len(minutes))
			return nil
		},
	}

	cmd.Flags().StringVar(&dateStr, "date", "", "session date (YYYY-MM-DD)")
	return cmd
}

func init() {
	rootCmd.AddCommand(newMinutesCmd())
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"tradecal/internal/calendar"
)

func newHolidaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "holidays",
		Short: "List business days the market was closed",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			for _, d := range app.Calendar.Holidays() {
				fmt.Fprintf(out, "%s %s\n", d.Format(calendar.DateLayout), d.Weekday().String()[:3])
			}
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newHolidaysCmd())
}

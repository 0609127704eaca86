package cli

import (
	"github.com/spf13/cobra"

	"pricebot/internal/app"
)

var (
	alertsFromArchive bool
	alertsLimit       int
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show recently triggered price alerts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Alerts(cmd.Context(), app.AlertsOptions{
			FromArchive: alertsFromArchive,
			Limit:       alertsLimit,
		})
	},
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsFromArchive, "archive", false, "Read alerts from the Postgres archive")
	alertsCmd.Flags().IntVar(&alertsLimit, "limit", 10, "Number of alerts to display")
}

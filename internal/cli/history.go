package cli

import (
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <token>",
	Short: "Show recent persisted prices for a token",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := ""
		if len(args) == 1 {
			token = args[0]
		}
		return reportInvalid(cmd, getApp().History(cmd.Context(), token))
	},
}

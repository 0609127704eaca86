package cli

import (
	"github.com/spf13/cobra"
)

var priceCmd = &cobra.Command{
	Use:   "price [token]",
	Short: "Show the current USD price of a token, or of every supported token",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := ""
		if len(args) == 1 {
			token = args[0]
		}
		return reportInvalid(cmd, getApp().Price(cmd.Context(), token))
	},
}

package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	simulateToken    string
	simulatePrevious float64
	simulateCurrent  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Simulate a price move and dispatch the resulting alert",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrevious <= 0 || simulateCurrent <= 0 {
			return errors.New("--previous and --current must be greater than 0")
		}

		previous := decimal.NewFromFloat(simulatePrevious)
		current := decimal.NewFromFloat(simulateCurrent)
		return reportInvalid(cmd, getApp().SimulateAlert(cmd.Context(), simulateToken, previous, current))
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateToken, "token", "bitcoin", "Token to simulate")
	simulateCmd.Flags().Float64Var(&simulatePrevious, "previous", 0, "Previous USD price")
	simulateCmd.Flags().Float64Var(&simulateCurrent, "current", 0, "Current USD price")
}

package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pricebot/internal/app"
	"pricebot/internal/config"
	"pricebot/internal/logging"
	"pricebot/internal/market"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:           "pricebot",
	Short:         "Poll cryptocurrency prices and alert on sharp moves",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger := logging.NewLogger(cfg.Logging)
		appHandle = app.NewApp(cfg, logger)
		appHandle.Out = cmd.OutOrStdout()
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(priceCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(alertsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}

// reportInvalid turns token validation failures into a friendly message on
// stdout; any other error is passed through.
func reportInvalid(cmd *cobra.Command, err error) error {
	var verr *market.ValidationError
	if !errors.As(err, &verr) {
		return err
	}

	out := cmd.OutOrStdout()
	supported := strings.Join(getApp().Config.Tokens, ", ")
	if verr.Token == "" {
		fmt.Fprintf(out, "❌ Please specify a token. Supported tokens: %s\n", supported)
		return nil
	}
	fmt.Fprintf(out, "❌ Unsupported token: %s\n", verr.Token)
	fmt.Fprintf(out, "Supported tokens: %s\n", supported)
	return nil
}

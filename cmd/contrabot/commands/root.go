package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "contrabot",
	Short: "Contrarian paper-trading bot for retail trading subreddits",
	Long: `Contrabot polls retail trading subreddits, extracts trade ideas with an
LLM, inverts them, and paper-trades the result through the Alpaca API.

Usage:
  go run ./cmd/contrabot [command]

Examples:
  go run ./cmd/contrabot run
  go run ./cmd/contrabot api
  go run ./cmd/contrabot migrate
  go run ./cmd/contrabot status`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

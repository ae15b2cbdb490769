package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the evegate application
var rootCmd = &cobra.Command{
	Use:   "evegate",
	Short: "Authenticated, rate-limited gateway to the EVE Online API",
	Long: `evegate is a gateway to the EVE Online ESI API. It manages SSO logins
for multiple characters, paces requests against the server's rate-limit
budgets and caches responses on disk with ETag revalidation.

It can run as:
  - An MCP (Model Context Protocol) server for AI assistants (default)
  - A standalone CLI for one-shot API requests`,
	SilenceUsage: true,
}

// Logging flags apply to every subcommand. Empty values defer to the
// EVEGATE_LOG_LEVEL / EVEGATE_LOG_FORMAT environment configuration.
var (
	logLevelFlag  string
	logFormatFlag string
)

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "evegate version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newAccountsCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}

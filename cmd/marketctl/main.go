package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	var verbose bool
	var envPrefix string

	rootCmd := &cobra.Command{
		Use:   "marketctl",
		Short: "Marketplace admin CLI",
		Long: `Marketplace admin command line interface

Runs database migrations, imports and exports entity CSV files and issues
API tokens. The service is configured from the same environment variables
as the server (DATABASE_URL, STORAGE_URL, JWT_SECRET, ...), optionally
loaded from a .env file in the current directory.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&envPrefix, "env-prefix", "", "prefix for service environment variables")

	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewEntitiesCommand())
	rootCmd.AddCommand(NewTemplateCommand())
	rootCmd.AddCommand(NewImportCommand())
	rootCmd.AddCommand(NewExportCommand())
	rootCmd.AddCommand(NewTokenCommand())

	return rootCmd
}

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// A rejected query has already been reported by the validate command.
		if !errors.Is(err, errRejected) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the root command without a
// subcommand is the same as "serve".
func newRootCmd() *cobra.Command {
	var envFile string
	flags := &serveFlags{}

	root := &cobra.Command{
		Use:           "sqlwarden",
		Short:         "MCP server that gives AI agents guarded access to a SQL database",
		Long:          "sqlwarden exposes a SQL database to MCP clients. Ad hoc reads are screened by a query validator and capped at a row limit; table management tools are available unless the server is read-only.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile == "" {
				return nil
			}
			// Existing environment variables win over the file.
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("loading env file %s: %w", envFile, err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file before reading configuration")
	flags.register(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(flags),
		newValidateCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newServeCmd(flags *serveFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sqlwarden %s\n", version)
		},
	}
}

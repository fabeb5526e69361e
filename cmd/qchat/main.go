package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qchat",
		Short: "qchat — identity-aware assistant client",
		Long:  "qchat manages temporary credential triples and drives signed conversations against the assistant service.",
	}

	cmd.PersistentFlags().StringP("config", "c", defaultConfigPath(), "path to qchat config file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newCredsCmd())
	cmd.AddCommand(newConversationsCmd())
	cmd.AddCommand(newChatCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "qchat %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment")
	}
	os.Exit(execute(newRootCmd()))
}

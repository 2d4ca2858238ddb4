package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/familycare/checkin-dispatch/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dispatchctl",
		Short: "Operator CLI for the check-in call dispatcher",
		Long: `dispatchctl runs single dispatch or reaper ticks and reports job heartbeats.
It reads the same environment configuration as the server.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(cli.RunCmd())
	rootCmd.AddCommand(cli.StatusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

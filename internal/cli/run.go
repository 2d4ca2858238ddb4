package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/familycare/checkin-dispatch/internal/config"
	"github.com/familycare/checkin-dispatch/internal/model"
)

// RunCmd returns the run command for triggering one job tick from an external scheduler.
func RunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single job tick and exit",
		Long: `Run one dispatch or reaper tick against the configured database.

Use this when an external scheduler owns the clock instead of the server's
built-in cron. The exit code is non-zero when the tick status is error.

Examples:
  dispatchctl run dispatch
  dispatchctl run reap --json`,
	}

	cmd.AddCommand(runDispatchCmd())
	cmd.AddCommand(runReapCmd())
	return cmd
}

func runDispatchCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Resolve due check-ins and dispatch them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), config.DispatchJobTimeout)
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.Dispatch.Run(ctx)
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: due=%d sent=%d already=%d noToken=%d failed=%d errors=%d\n",
					statusLabel(result.Status), config.JobCallDispatch,
					result.Due, result.Sent, result.AlreadyCalled, result.NoToken, result.SendFailed, result.Errors)
			}
			return tickError(config.JobCallDispatch, result.Status)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full tick result as JSON")
	return cmd
}

func runReapCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Terminate stale sessions and purge expired pairings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), config.ReaperJobTimeout)
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.Reaper.Run(ctx)
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: missed=%d completed=%d alerts=%d pairingsPurged=%d\n",
					statusLabel(result.Status), config.JobSessionReaper,
					result.Missed.Transitioned, result.Completed.Transitioned, result.AlertsCreated, result.PairingsPurged)
			}
			return tickError(config.JobSessionReaper, result.Status)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full reaper result as JSON")
	return cmd
}

func tickError(job string, status model.HeartbeatStatus) error {
	if status == model.HeartbeatStatusError {
		return fmt.Errorf("%s finished with status %s", job, status)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusLabel(status model.HeartbeatStatus) string {
	switch status {
	case model.HeartbeatStatusSuccess:
		return color.New(color.FgGreen).Sprint("✓")
	case model.HeartbeatStatusPartialSuccess:
		return color.New(color.FgYellow).Sprint("!")
	default:
		return color.New(color.FgRed).Sprint("✗")
	}
}

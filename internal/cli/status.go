package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/familycare/checkin-dispatch/internal/config"
	"github.com/familycare/checkin-dispatch/internal/model"
)

// expectedJobs are reported even before their first run.
var expectedJobs = []string{config.JobCallDispatch, config.JobSessionReaper}

// StatusCmd returns the status command showing the last run of each job.
func StatusCmd() *cobra.Command {
	var staleAfter time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last heartbeat of each periodic job",
		Long: `Show the last recorded heartbeat of each periodic job.

A job whose last run is older than --stale-after is flagged STALE; a job that
never ran is flagged MISSING. The exit code is non-zero if any job is in
error, stale or missing.

Examples:
  dispatchctl status
  dispatchctl status --stale-after 15m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			heartbeats, err := a.Heartbeats.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list heartbeats: %w", err)
			}

			if healthy := renderStatus(cmd.OutOrStdout(), heartbeats, time.Now(), staleAfter); !healthy {
				return fmt.Errorf("one or more jobs need attention")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&staleAfter, "stale-after", 10*time.Minute, "Flag jobs whose last run is older than this")
	return cmd
}

// renderStatus prints one line per job and reports whether all are healthy.
func renderStatus(w io.Writer, heartbeats []model.CronHeartbeat, now time.Time, staleAfter time.Duration) bool {
	byJob := make(map[string]model.CronHeartbeat, len(heartbeats))
	for _, hb := range heartbeats {
		byJob[hb.JobName] = hb
	}
	names := append([]string(nil), expectedJobs...)
	for name := range byJob {
		if !contains(expectedJobs, name) {
			names = append(names, name)
		}
	}
	sort.Strings(names[len(expectedJobs):])

	healthy := true
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-16s %-16s %s\n", "Job", "Status", "Last run")
	fmt.Fprintln(w, "──────────────────────────────────────────────────")
	for _, name := range names {
		hb, ok := byJob[name]
		if !ok {
			healthy = false
			fmt.Fprintf(w, "%-16s %-16s %s\n", name, color.New(color.FgRed).Sprint("MISSING"), "never")
			continue
		}

		age := now.Sub(hb.LastRun).Truncate(time.Second)
		label := statusText(hb.Status)
		switch {
		case age > staleAfter:
			healthy = false
			label = color.New(color.FgYellow).Sprint("STALE")
		case hb.Status == model.HeartbeatStatusError:
			healthy = false
		}
		fmt.Fprintf(w, "%-16s %-16s %s ago\n", name, label, age)
	}
	fmt.Fprintln(w)
	return healthy
}

func statusText(status model.HeartbeatStatus) string {
	switch status {
	case model.HeartbeatStatusSuccess:
		return color.New(color.FgGreen).Sprint(string(status))
	case model.HeartbeatStatusPartialSuccess:
		return color.New(color.FgYellow).Sprint(string(status))
	default:
		return color.New(color.FgRed).Sprint(string(status))
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

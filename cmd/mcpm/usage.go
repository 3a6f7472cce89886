package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpm-sh/mcpm/internal/formatting"
)

var (
	usageSince  string
	usageRecent int
)

// newUsageCmd builds `mcpm usage`, surfacing the Telemetry Store's
// derived reports.
func newUsageCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "usage",
		Short: "Report usage derived from telemetry",
	}

	servers := &cobra.Command{
		Use:   "servers",
		Short: "Per-server usage stats",
		Args:  cobra.NoArgs,
		RunE:  runUsageServers,
	}
	profiles := &cobra.Command{
		Use:   "profiles",
		Short: "Per-profile usage stats",
		Args:  cobra.NoArgs,
		RunE:  runUsageProfiles,
	}
	recent := &cobra.Command{
		Use:   "recent",
		Short: "Recently completed sessions",
		Args:  cobra.NoArgs,
		RunE:  runUsageRecent,
	}
	recent.Flags().IntVar(&usageRecent, "limit", 20, "maximum number of sessions to show")

	for _, c := range []*cobra.Command{servers, profiles, recent} {
		c.Flags().StringVar(&usageSince, "since", "720h", "report window, as a Go duration (default 30 days)")
	}

	root.AddCommand(servers, profiles, recent)
	return root
}

func usageWindow() (time.Time, error) {
	d, err := time.ParseDuration(usageSince)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since duration %q: %w", usageSince, err)
	}
	return time.Now().Add(-d), nil
}

func runUsageServers(cmd *cobra.Command, args []string) error {
	since, err := usageWindow()
	if err != nil {
		return err
	}
	a, err := newApp("127.0.0.1", 0)
	if err != nil {
		return err
	}
	defer a.Shutdown(cmd.Context())

	stats, err := a.Telemetry().ServerStatsSince(since)
	if err != nil {
		return err
	}
	if flagJSON {
		return formatting.WriteJSON(cmd.OutOrStdout(), stats)
	}

	tbl := formatting.Table{Header: []string{"SERVER", "SESSIONS", "RUNS", "SUCCESS %", "LAST USED"}}
	for _, s := range stats {
		tbl.Rows = append(tbl.Rows, []string{
			s.ServerName,
			fmt.Sprintf("%d", s.TotalSessions),
			fmt.Sprintf("%d", s.TotalRuns),
			fmt.Sprintf("%.1f", s.SuccessRate*100),
			s.LastUsed.Format(time.RFC3339),
		})
	}
	return tbl.Write(cmd.OutOrStdout())
}

func runUsageProfiles(cmd *cobra.Command, args []string) error {
	since, err := usageWindow()
	if err != nil {
		return err
	}
	a, err := newApp("127.0.0.1", 0)
	if err != nil {
		return err
	}
	defer a.Shutdown(cmd.Context())

	stats, err := a.Telemetry().ProfileStatsSince(since)
	if err != nil {
		return err
	}
	if flagJSON {
		return formatting.WriteJSON(cmd.OutOrStdout(), stats)
	}

	tbl := formatting.Table{Header: []string{"PROFILE", "SESSIONS", "RUNS", "SERVERS", "LAST USED"}}
	for _, s := range stats {
		tbl.Rows = append(tbl.Rows, []string{
			s.ProfileName,
			fmt.Sprintf("%d", s.TotalSessions),
			fmt.Sprintf("%d", s.TotalRuns),
			fmt.Sprintf("%d", s.ServerCount),
			s.LastUsed.Format(time.RFC3339),
		})
	}
	return tbl.Write(cmd.OutOrStdout())
}

func runUsageRecent(cmd *cobra.Command, args []string) error {
	a, err := newApp("127.0.0.1", 0)
	if err != nil {
		return err
	}
	defer a.Shutdown(cmd.Context())

	sessions, err := a.Telemetry().RecentSessions(usageRecent)
	if err != nil {
		return err
	}
	if flagJSON {
		return formatting.WriteJSON(cmd.OutOrStdout(), sessions)
	}

	tbl := formatting.Table{Header: []string{"SESSION", "STARTED", "DURATION"}}
	for _, s := range sessions {
		tbl.Rows = append(tbl.Rows, []string{
			s.SessionID,
			s.StartedAt.Format(time.RFC3339),
			fmt.Sprintf("%dms", s.DurationMs),
		})
	}
	return tbl.Write(cmd.OutOrStdout())
}

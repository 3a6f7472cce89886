package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcpm-sh/mcpm/internal/aggregator"
)

var (
	runProfile string
	runHTTP    bool
	runHost    string
	runPort    int
)

// newRunCmd builds `mcpm run`, which starts the aggregator for a single
// downstream server or every server tagged with a profile.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [server]",
		Short: "Start the aggregator for one server or a tagged profile",
		Long: `Starts the Aggregating Router and proxies MCP traffic to either a single
catalog server or every server tagged with a profile. A profile run uses
stdio (the default) or streamable-HTTP with --http; a single-server run
always uses stdio, and --http, --host and --port have no effect on it.

  mcpm run github                # stdio, single server
  mcpm run --profile dev         # stdio, profile fan-out
  mcpm run --profile dev --http  # streamable-HTTP, profile fan-out`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRun,
	}
	cmd.Flags().StringVar(&runProfile, "profile", "", "run every server tagged with this profile instead of a single server")
	cmd.Flags().BoolVar(&runHTTP, "http", false, "with --profile, expose the aggregator over streamable-HTTP instead of stdio")
	cmd.Flags().StringVar(&runHost, "host", "127.0.0.1", "host to bind when --http is set")
	cmd.Flags().IntVar(&runPort, "port", 0, "port to bind when --http is set (0 picks an ephemeral port)")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	if runProfile == "" && len(args) == 0 {
		return fmt.Errorf("mcpm run: provide a server name or --profile")
	}
	if runProfile != "" && len(args) > 0 {
		return fmt.Errorf("mcpm run: a server name and --profile are mutually exclusive")
	}

	a, err := newApp(runHost, runPort)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runDone := make(chan error, 1)
	go func() {
		if runProfile != "" {
			transport := aggregator.TransportStdio
			if runHTTP {
				transport = aggregator.TransportStreamableHTTP
			}
			runDone <- a.RunProfile(ctx, runProfile, transport)
			return
		}
		runDone <- a.RunServer(ctx, args[0])
	}()

	select {
	case <-ctx.Done():
		_ = a.Shutdown(cmd.Context())
		<-runDone
		return errInterrupted
	case err := <-runDone:
		_ = a.Shutdown(cmd.Context())
		return err
	}
}

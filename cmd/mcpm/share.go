package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	shareProfile   string
	shareHost      string
	shareAddr      string
	sharePlainHTTP bool
)

// newShareCmd builds `mcpm share`, publishing a profile's aggregator
// through the Tunnel Client.
func newShareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Publish a profile's aggregator through the share service",
		Long: `Starts the aggregator over streamable-HTTP on an ephemeral local port for
the given profile, then tunnels it through a share service so it's reachable
from the public internet. Prints the assigned public URL and blocks until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: runShare,
	}
	cmd.Flags().StringVar(&shareProfile, "profile", "", "profile to share (required)")
	cmd.Flags().StringVar(&shareHost, "host", "127.0.0.1", "host the local aggregator binds to")
	cmd.Flags().StringVar(&shareAddr, "share-addr", "share.mcpm.sh:7000", "address of the share service")
	cmd.Flags().BoolVar(&sharePlainHTTP, "plain-http", false, "request an http:// public URL instead of https://")
	cmd.MarkFlagRequired("profile")
	return cmd
}

func runShare(cmd *cobra.Command, args []string) error {
	a, err := newApp(shareHost, 0)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	url, err := a.Share(ctx, shareProfile, shareAddr, sharePlainHTTP)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sharing profile %q at %s\n", shareProfile, url)

	<-ctx.Done()
	if err := a.Shutdown(cmd.Context()); err != nil {
		return err
	}
	return errInterrupted
}

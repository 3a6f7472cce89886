package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcpm-sh/mcpm/internal/clierr"
	"github.com/mcpm-sh/mcpm/internal/formatting"
)

// newProfileCmd builds the `mcpm profile` command group: tagging servers
// with a profile and managing the optional profile metadata record.
func newProfileCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "profile",
		Short: "Manage profile tags on catalog servers",
	}

	root.AddCommand(&cobra.Command{
		Use:   "tag <server> <profile>",
		Short: "Tag a server with a profile",
		Args:  cobra.ExactArgs(2),
		RunE:  runProfileTag,
	})

	root.AddCommand(&cobra.Command{
		Use:   "untag <server> <profile>",
		Short: "Remove a profile tag from a server",
		Args:  cobra.ExactArgs(2),
		RunE:  runProfileUntag,
	})

	root.AddCommand(&cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List profiles derived from server tags",
		Args:    cobra.NoArgs,
		RunE:    runProfileList,
	})

	rmCmd := &cobra.Command{
		Use:     "rm <profile>",
		Aliases: []string{"remove"},
		Short:   "Delete a profile: its metadata record and its tag on every server (the servers stay in the catalog)",
		Args:    cobra.ExactArgs(1),
		RunE:    runProfileRemove,
	}
	root.AddCommand(rmCmd)

	return root
}

func runProfileTag(cmd *cobra.Command, args []string) error {
	server, profile := args[0], args[1]
	a, err := newApp("127.0.0.1", 0)
	if err != nil {
		return err
	}
	defer a.Shutdown(cmd.Context())

	if err := a.Catalog().AddProfileTag(server, profile); err != nil {
		return clierr.NewValidation("%v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Tagged %q with profile %q.\n", server, profile)
	return nil
}

func runProfileUntag(cmd *cobra.Command, args []string) error {
	server, profile := args[0], args[1]
	a, err := newApp("127.0.0.1", 0)
	if err != nil {
		return err
	}
	defer a.Shutdown(cmd.Context())

	if err := a.Catalog().RemoveProfileTag(server, profile); err != nil {
		return clierr.NewValidation("%v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Untagged %q from profile %q.\n", server, profile)
	return nil
}

func runProfileList(cmd *cobra.Command, args []string) error {
	a, err := newApp("127.0.0.1", 0)
	if err != nil {
		return err
	}
	defer a.Shutdown(cmd.Context())

	profiles := a.Catalog().VirtualProfiles()
	if flagJSON {
		return formatting.WriteJSON(cmd.OutOrStdout(), profiles)
	}

	tbl := formatting.Table{Header: []string{"PROFILE", "SERVERS"}}
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		servers := profiles[name]
		serverNames := make([]string, len(servers))
		for i, s := range servers {
			serverNames[i] = s.ServerName()
		}
		tbl.Rows = append(tbl.Rows, []string{name, strings.Join(serverNames, ",")})
	}
	return tbl.Write(cmd.OutOrStdout())
}

func runProfileRemove(cmd *cobra.Command, args []string) error {
	profile := args[0]
	a, err := newApp("127.0.0.1", 0)
	if err != nil {
		return err
	}
	defer a.Shutdown(cmd.Context())

	if !a.Catalog().ProfileExists(profile) {
		return clierr.NewValidation("profile %q not found", profile)
	}

	if !flagForce {
		if flagNonInteractive || !confirmAction(fmt.Sprintf("Delete profile %q (metadata and server tags)?", profile)) {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	if err := a.Catalog().DeleteProfile(profile); err != nil {
		return &clierr.CatalogWriteError{Reason: err}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted profile %q.\n", profile)
	return nil
}

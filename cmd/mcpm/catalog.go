package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mcpm-sh/mcpm/internal/catalog"
	"github.com/mcpm-sh/mcpm/internal/clierr"
	"github.com/mcpm-sh/mcpm/internal/formatting"
)

var (
	catalogAddCommand string
	catalogAddArgs    []string
	catalogAddEnv     []string
	catalogAddURL     string
	catalogAddHeader  []string
)

// newCatalogCmd builds the `mcpm catalog` command group: add/ls/rm for the
// local catalog store of downstream server records.
func newCatalogCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the catalog of downstream MCP servers",
	}

	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a server to the catalog",
		Long: `Adds a stdio or remote server to the catalog.

  mcpm catalog add github --command npx --args @modelcontextprotocol/server-github
  mcpm catalog add search --url https://mcp.example.com/sse --header "Authorization: Bearer ..."`,
		Args: cobra.ExactArgs(1),
		RunE: runCatalogAdd,
	}
	addCmd.Flags().StringVar(&catalogAddCommand, "command", "", "command to launch (stdio server)")
	addCmd.Flags().StringSliceVar(&catalogAddArgs, "args", nil, "arguments passed to --command")
	addCmd.Flags().StringSliceVar(&catalogAddEnv, "env", nil, "KEY=VALUE environment entries for --command")
	addCmd.Flags().StringVar(&catalogAddURL, "url", "", "endpoint URL (remote server)")
	addCmd.Flags().StringSliceVar(&catalogAddHeader, "header", nil, "Key: Value header for --url")
	root.AddCommand(addCmd)

	root.AddCommand(&cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List catalog servers",
		Args:    cobra.NoArgs,
		RunE:    runCatalogList,
	})

	rmCmd := &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"remove"},
		Short:   "Remove a server from the catalog",
		Args:    cobra.ExactArgs(1),
		RunE:    runCatalogRemove,
	}
	root.AddCommand(rmCmd)

	return root
}

func runCatalogAdd(cmd *cobra.Command, args []string) error {
	name := args[0]
	if catalogAddCommand == "" && catalogAddURL == "" {
		return clierr.NewValidation("catalog add %q: provide --command (stdio) or --url (remote)", name)
	}
	if catalogAddCommand != "" && catalogAddURL != "" {
		return clierr.NewValidation("catalog add %q: --command and --url are mutually exclusive", name)
	}

	var cfg catalog.ServerConfig
	if catalogAddCommand != "" {
		env, err := parseKeyValues(catalogAddEnv, "=")
		if err != nil {
			return clierr.NewValidation("catalog add %q: %v", name, err)
		}
		cfg = &catalog.StdioServer{Name: name, Command: catalogAddCommand, Args: catalogAddArgs, Env: env}
	} else {
		headers, err := parseKeyValues(catalogAddHeader, ":")
		if err != nil {
			return clierr.NewValidation("catalog add %q: %v", name, err)
		}
		cfg = &catalog.RemoteServer{Name: name, URL: catalogAddURL, Headers: headers}
	}

	a, err := newApp("127.0.0.1", 0)
	if err != nil {
		return err
	}
	defer a.Shutdown(cmd.Context())

	if err := a.Catalog().AddServer(cfg, flagForce); err != nil {
		return &clierr.CatalogWriteError{Reason: err}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s server %q.\n", cfg.Kind(), name)
	return nil
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	a, err := newApp("127.0.0.1", 0)
	if err != nil {
		return err
	}
	defer a.Shutdown(cmd.Context())

	servers := a.Catalog().ListServers()
	if flagJSON {
		return formatting.WriteJSON(cmd.OutOrStdout(), servers)
	}

	tbl := formatting.Table{Header: []string{"NAME", "KIND", "TARGET", "PROFILES"}}
	for _, s := range servers {
		target := ""
		switch c := s.(type) {
		case *catalog.StdioServer:
			target = c.Command
		case *catalog.RemoteServer:
			target = c.URL
		}
		tbl.Rows = append(tbl.Rows, []string{s.ServerName(), string(s.Kind()), target, strings.Join(s.Tags(), ",")})
	}
	return tbl.Write(cmd.OutOrStdout())
}

func runCatalogRemove(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := newApp("127.0.0.1", 0)
	if err != nil {
		return err
	}
	defer a.Shutdown(cmd.Context())

	if !a.Catalog().ServerExists(name) {
		return clierr.NewValidation("server %q not found in catalog", name)
	}

	if !flagForce {
		if flagNonInteractive || !confirmAction(fmt.Sprintf("Remove server %q?", name)) {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	if err := a.Catalog().RemoveServer(name); err != nil {
		return &clierr.CatalogWriteError{Reason: err}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed server %q.\n", name)
	return nil
}

// parseKeyValues splits a list of "KEY<sep>VALUE" entries into a map,
// trimming surrounding whitespace from both sides.
func parseKeyValues(entries []string, sep string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		idx := strings.Index(e, sep)
		if idx < 0 {
			return nil, fmt.Errorf("expected KEY%sVALUE, got %q", sep, e)
		}
		key := strings.TrimSpace(e[:idx])
		val := strings.TrimSpace(e[idx+len(sep):])
		if key == "" {
			return nil, fmt.Errorf("empty key in %q", e)
		}
		out[key] = val
	}
	return out, nil
}

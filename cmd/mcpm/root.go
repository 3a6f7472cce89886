package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mcpm-sh/mcpm/internal/clierr"
	"github.com/mcpm-sh/mcpm/pkg/logging"
)

// Exit codes for CLI commands.
const (
	ExitSuccess    = clierr.ExitSuccess
	ExitError      = clierr.ExitError
	ExitValidation = clierr.ExitValidation
	ExitInterrupt  = clierr.ExitInterrupt
)

// errInterrupted is returned by long-running commands (run, share) when
// they're stopped by SIGINT/SIGTERM, so Execute can map it to exit code
// 130 instead of the general-error code.
var errInterrupted = errors.New("interrupted")

var (
	flagDebug          bool
	flagJSON           bool
	flagForce          bool
	flagNonInteractive bool
	flagCatalogDir     string
	flagCollisionMode  string
)

// rootCmd is the base command for the mcpm CLI.
var rootCmd = &cobra.Command{
	Use:   "mcpm",
	Short: "A package-manager-style control plane for MCP servers",
	Long: `mcpm catalogs downstream MCP servers, aggregates their tools, prompts, and
resources behind a single upstream MCP endpoint, and can publish that
endpoint to the public internet through a share service.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := logging.LevelInfo
		if flagDebug {
			level = logging.LevelDebug
		}
		logging.InitForCLI(level, os.Stderr)

		if flagCollisionMode != "auto" && flagCollisionMode != "strict" {
			return clierr.NewValidation("--collision-mode must be %q or %q, got %q", "auto", "strict", flagCollisionMode)
		}
		return nil
	},
}

// SetVersion sets the version reported by `mcpm version`.
func SetVersion(v string) { rootCmd.Version = v }

// Execute runs the root command and maps the result onto the process exit
// code: 0 on success, 2 for a validation or catalog-write error, 130 on
// SIGINT/SIGTERM, and
// 1 for everything else.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	if errors.Is(err, errInterrupted) {
		os.Exit(ExitInterrupt)
	}
	os.Exit(clierr.ExitCode(err))
}

func defaultCatalogDir() string {
	if dir := os.Getenv("MCPM_CATALOG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mcpm"
	}
	return filepath.Join(home, ".mcpm")
}

func defaultTelemetryPath(dir string) string {
	return filepath.Join(dir, "telemetry.db")
}

func catalogDir() string {
	if flagCatalogDir != "" {
		return flagCatalogDir
	}
	return defaultCatalogDir()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVar(&flagForce, "force", false, "bypass confirmation and overwrite-protection checks")
	rootCmd.PersistentFlags().BoolVar(&flagNonInteractive, "non-interactive", false, "never prompt; fail instead of asking")
	rootCmd.PersistentFlags().StringVar(&flagCatalogDir, "catalog-dir", "", "catalog directory (default: $MCPM_CATALOG_DIR or ~/.mcpm)")
	rootCmd.PersistentFlags().StringVar(&flagCollisionMode, "collision-mode", "auto", `how to handle colliding tool/prompt/resource names across servers: "auto" rewrites the later registrant, "strict" aborts startup naming both sources`)

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newShareCmd())
	rootCmd.AddCommand(newCatalogCmd())
	rootCmd.AddCommand(newProfileCmd())
	rootCmd.AddCommand(newUsageCmd())
	rootCmd.AddCommand(newVersionCmd())
}

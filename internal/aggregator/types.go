package aggregator

import (
	"time"

	"github.com/mcpm-sh/mcpm/internal/registry"
	"github.com/mcpm-sh/mcpm/internal/session"
)

// Transport selects how the Aggregating Router exposes its upstream MCP
// server.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportStreamableHTTP Transport = "http"
)

// Config configures one Aggregator instance. It is built once, at
// construction time, from the resolved set of downstreams for a `run`
// (single server) or `run --profile`/`share --profile` (profile fan-out)
// invocation — profile-scoping rule means the allow-list
// here is frozen for the life of the Aggregator even if the catalog
// changes underneath it.
type Config struct {
	Host      string
	Port      int
	Transport Transport

	// CollisionMode governs the Capability Registry's collision policy.
	// ModeAuto is the default and ModeStrict can be requested explicitly.
	// A single-server `run <server>` uses the configured mode too; with
	// one downstream no collision can arise.
	CollisionMode registry.Mode

	// AllowedServers restricts Registry snapshots to this set of
	// downstream names when non-nil (profile scoping). A single-server
	// run leaves this nil.
	AllowedServers map[string]bool

	// ProfileName is recorded on every Session started against this
	// Aggregator, empty for a plain
	// `run <server>`.
	ProfileName string

	// Action is the operator-facing invocation kind.
	Action session.Action

	// CallTimeout overrides the default per-downstream-call deadline
	// when non-zero.
	CallTimeout time.Duration

	// DebugLogging enables the Debug middleware.
	DebugLogging bool

	// AuthEnabled and APIKey configure the Auth middleware; bypassed outright in stdio mode regardless of
	// AuthEnabled.
	AuthEnabled bool
	APIKey      string
}

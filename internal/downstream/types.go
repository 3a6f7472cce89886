package downstream

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// State is the lifecycle state of a downstream Client.
type State string

const (
	StateStarting     State = "starting"
	StateHealthy      State = "healthy"
	StateFailed       State = "failed"
	StateShuttingDown State = "shutting_down"
	StateClosed       State = "closed"
)

// DefaultCallTimeout is the per-call deadline applied when the caller's
// context carries no deadline of its own.
const DefaultCallTimeout = 60 * time.Second

// StdioEnvFlag is the env-floor sentinel every stdio downstream receives
// even when configured with an empty env: an empty env slice
// passed to a subprocess can mean "inherit nothing" on some platforms, so
// this sentinel plus PATH is always present.
const StdioEnvFlag = "MCPM_STDIO_SERVER=true"

// Client is the interface every downstream transport implements. The
// Aggregating Router (internal/aggregator) and Capability Registry
// (internal/registry) depend only on this interface, never on a concrete
// transport type.
type Client interface {
	// Start launches the transport and performs the MCP initialize
	// handshake, transitioning starting -> healthy (or -> failed).
	Start(ctx context.Context) error
	// Shutdown requests an orderly close; idempotent.
	Shutdown(ctx context.Context) error
	// State returns the current lifecycle state.
	State() State
	// InitializeResult returns the stored handshake result. Only valid
	// once State() == StateHealthy.
	InitializeResult() *mcp.InitializeResult

	ListTools(ctx context.Context) ([]mcp.Tool, error)
	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error)

	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	// Complete forwards a completion/complete request for a prompt or
	// resource argument. ref is an mcp.PromptReference or
	// mcp.ResourceReference naming the downstream's original id/uri, never
	// the upstream-exposed one.
	Complete(ctx context.Context, ref any, argName, argValue string) (*mcp.CompleteResult, error)

	// Stderr returns the subprocess stderr stream for stdio transports,
	// and false for every other transport.
	Stderr() (r StderrReader, ok bool)
}

// StderrReader is satisfied by io.Reader; named to avoid importing io in
// call sites that only need the capability check.
type StderrReader interface {
	Read(p []byte) (n int, err error)
}

// Package aggregator implements the Aggregating Router: an upstream
// mark3labs/mcp-go MCP server that unions the capabilities of every
// connected downstream (internal/downstream) and dispatches each inbound
// request to the right one via the Capability Registry (internal/registry).
//
// It builds one mcpserver.MCPServer per run, registering tools, prompts,
// and resources through per-downstream handler-factory closures, with an
// optional systemd socket-activation fast path for the HTTP listener. The
// aggregator has no notion of per-session tool visibility; profile scoping
// is fixed at construction time instead.
package aggregator

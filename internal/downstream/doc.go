// Package downstream manages one long-lived MCP client session per
// configured downstream server (stdio child process or HTTP/SSE endpoint).
//
// Each Client owns the transport, the active mark3labs/mcp-go session, the
// initialize response advertising the downstream's declared capabilities,
// and (stdio only) stderr capture. Clients move through an explicit state
// machine (starting, healthy, failed, shutting_down, closed); only healthy
// clients accept calls. A start() failure drops that downstream — the rest
// of the aggregation proxy continues with whatever connected successfully.
package downstream

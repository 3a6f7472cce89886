package session

import "context"

// RequestContext is the well-typed replacement for the Python original's
// runtime attribute probing on context objects (`hasattr(context,
// "request")`, etc. — ). Every field is always
// present (zero-valued when not applicable), so classification logic is
// total instead of relying on probing for optional attributes.
type RequestContext struct {
	// Transport is "stdio" or "http", matching 
	Transport string
	// Headers carries the inbound HTTP headers, nil for stdio.
	Headers map[string]string
	// ClientAddr is the remote address as seen by the HTTP listener
	// (e.g. "203.0.113.7:51320"), empty for stdio.
	ClientAddr string
	// MCPServerKind distinguishes which logical server produced the
	// request when multiple aggregators share a process (currently
	// always "aggregator", kept for forward-compatibility).
	MCPServerKind string
}

// Kind identifies the MCP operation a Request represents.
type Kind string

const (
	KindCallTool      Kind = "call_tool"
	KindReadResource  Kind = "read_resource"
	KindGetPrompt     Kind = "get_prompt"
	KindListTools     Kind = "list_tools"
	KindListResources Kind = "list_resources"
	KindListPrompts   Kind = "list_prompts"
	KindComplete      Kind = "complete"
)

// CompleteRefKind distinguishes whether a KindComplete Request's reference
// names a prompt or a resource, mirroring the MCP "ref/prompt" and
// "ref/resource" completion reference types.
type CompleteRefKind string

const (
	CompleteRefPrompt   CompleteRefKind = "prompt"
	CompleteRefResource CompleteRefKind = "resource"
)

// Request describes one inbound upstream operation as it flows through
// the middleware chain. Name is the exposed capability id (e.g. the tool
// name as the upstream client sees it); ServerName is filled in by the
// aggregator once the Capability Registry has resolved it, and may be
// empty when the lookup itself fails.
//
// CompleteRef, ArgName, and ArgValue are only meaningful when Kind ==
// KindComplete: CompleteRef says whether Name refers to a prompt or a
// resource, and ArgName/ArgValue carry the argument being completed.
type Request struct {
	Kind       Kind
	Name       string
	ServerName string
	Args       map[string]any

	CompleteRef CompleteRefKind
	ArgName     string
	ArgValue    string
}

type requestContextKey struct{}

// WithRequestContext attaches rc to ctx so every middleware in the chain —
// and the final Handler — can retrieve the same per-request metadata
//. The caller (the Aggregating Router) sets this once per
// inbound request, before entering the Chain.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFromContext retrieves the RequestContext stashed by
// WithRequestContext.
func RequestContextFromContext(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}

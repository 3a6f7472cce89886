package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mcpm-sh/mcpm/internal/downstream"
	"github.com/mcpm-sh/mcpm/internal/registry"
	"github.com/mcpm-sh/mcpm/internal/session"
)

// sessionFor resolves (and, on the first call for a connection, opens) the
// session.Session tracking an inbound MCP connection. The Unified Tracking
// middleware synthesizes SESSION_START exactly once per upstream
// connection; session identity comes from mcp-go's
// ClientSession when available (HTTP/SSE transports) and falls back to a
// process-wide id for stdio, which only ever has one connection.
func (a *Aggregator) sessionFor(ctx context.Context, clientAddr string) *session.Session {
	id := a.stdioSessionID
	if cs := mcpserver.ClientSessionFromContext(ctx); cs != nil {
		id = cs.SessionID()
	}

	if sess, ok := a.sessions.Get(id); ok {
		return sess
	}

	transport := string(a.config.Transport)
	source := session.ClassifySource(transport, session.ClientIP(headersFromContext(ctx), clientAddr))
	sess := &session.Session{
		ID:        id,
		Action:    a.config.Action,
		Transport: transport,
		Source:    source,
		StartedAt: a.now(),
	}
	a.sessions.Open(sess)
	return sess
}

type httpHeadersContextKey struct{}

// headersFromContext extracts inbound HTTP headers stashed by the transport
// layer's HTTP middleware, if any. Stdio connections never populate this.
func headersFromContext(ctx context.Context) map[string]string {
	if h, ok := ctx.Value(httpHeadersContextKey{}).(map[string]string); ok {
		return h
	}
	return nil
}

// withHeaders records the inbound HTTP request's headers on ctx so
// AuthMiddleware and session classification can read them downstream.
func withHeaders(ctx context.Context, headers map[string]string) context.Context {
	return context.WithValue(ctx, httpHeadersContextKey{}, headers)
}

// dispatch runs req through the middleware chain and finally forwards it to
// the resolved downstream, implementing §4.D.
func (a *Aggregator) dispatch(ctx context.Context, clientAddr string, req *session.Request) (any, error) {
	sess := a.sessionFor(ctx, clientAddr)
	sess.Transport = string(a.config.Transport)
	sess.ProfileName = a.config.ProfileName

	rc := &session.RequestContext{
		Transport:     string(a.config.Transport),
		Headers:       headersFromContext(ctx),
		ClientAddr:    clientAddr,
		MCPServerKind: "aggregator",
	}
	ctx = session.WithRequestContext(ctx, rc)

	handler := a.chain.Then(a.finalHandler)
	return handler(ctx, sess, req)
}

// finalHandler performs the actual Registry lookup + downstream call that
// every middleware ultimately wraps.
func (a *Aggregator) finalHandler(ctx context.Context, sess *session.Session, req *session.Request) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout())
	defer cancel()

	switch req.Kind {
	case session.KindCallTool:
		return a.callTool(ctx, req)
	case session.KindGetPrompt:
		return a.getPrompt(ctx, req)
	case session.KindReadResource:
		return a.readResource(ctx, req)
	case session.KindComplete:
		return a.complete(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported request kind %q", req.Kind)
	}
}

func stringArgs(args map[string]any) map[string]string {
	out := make(map[string]string, len(args))
	for k, v := range args {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

func (a *Aggregator) callTimeout() time.Duration {
	if a.config.CallTimeout > 0 {
		return a.config.CallTimeout
	}
	return downstream.DefaultCallTimeout
}

func (a *Aggregator) callTool(ctx context.Context, req *session.Request) (*mcp.CallToolResult, error) {
	rec, ok := a.registry.Resolve(registry.KindTool, req.Name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("tool %q not found", req.Name)), nil
	}
	req.ServerName = rec.Server

	client, ok := a.downstreams.get(rec.Server)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("server %q not available", rec.Server)), nil
	}
	result, err := client.CallTool(ctx, rec.OriginalID, req.Args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return result, nil
}

func (a *Aggregator) getPrompt(ctx context.Context, req *session.Request) (*mcp.GetPromptResult, error) {
	rec, ok := a.registry.Resolve(registry.KindPrompt, req.Name)
	if !ok {
		return nil, fmt.Errorf("prompt %q not found", req.Name)
	}
	req.ServerName = rec.Server

	client, ok := a.downstreams.get(rec.Server)
	if !ok {
		return nil, fmt.Errorf("server %q not available", rec.Server)
	}
	return client.GetPrompt(ctx, rec.OriginalID, stringArgs(req.Args))
}

func (a *Aggregator) readResource(ctx context.Context, req *session.Request) ([]mcp.ResourceContents, error) {
	rec, ok := a.registry.Resolve(registry.KindResource, req.Name)
	if !ok {
		return nil, fmt.Errorf("resource %q not found", req.Name)
	}
	req.ServerName = rec.Server

	client, ok := a.downstreams.get(rec.Server)
	if !ok {
		return nil, fmt.Errorf("server %q not available", rec.Server)
	}
	res, err := client.ReadResource(ctx, rec.OriginalID)
	if err != nil {
		return nil, err
	}
	return res.Contents, nil
}

// complete forwards a completion/complete request, dispatching on whether
// req's reference names a prompt or a resource (the Registry keeps a
// separate namespace for each).
func (a *Aggregator) complete(ctx context.Context, req *session.Request) (*mcp.CompleteResult, error) {
	kind := registry.KindPrompt
	if req.CompleteRef == session.CompleteRefResource {
		kind = registry.KindResource
	}

	rec, ok := a.registry.Resolve(kind, req.Name)
	if !ok {
		return nil, fmt.Errorf("completion reference %q not found", req.Name)
	}
	req.ServerName = rec.Server

	client, ok := a.downstreams.get(rec.Server)
	if !ok {
		return nil, fmt.Errorf("server %q not available", rec.Server)
	}

	var ref any
	if kind == registry.KindPrompt {
		ref = mcp.PromptReference{Type: "ref/prompt", Name: rec.OriginalID}
	} else {
		ref = mcp.ResourceReference{Type: "ref/resource", URI: rec.OriginalID}
	}
	return client.Complete(ctx, ref, req.ArgName, req.ArgValue)
}

var _ downstream.Client // referenced via downstreams map's value type

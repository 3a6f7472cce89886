package aggregator

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mcpm-sh/mcpm/internal/downstream"
	"github.com/mcpm-sh/mcpm/internal/registry"
	"github.com/mcpm-sh/mcpm/internal/session"
	"github.com/mcpm-sh/mcpm/pkg/logging"
)

// Aggregator is the Aggregating Router: it presents a
// single MCP server whose capabilities are the union of every registered
// downstream's, rewriting colliding names per the Capability Registry and
// forwarding each call to its resolved downstream.
//
// It never forwards an upstream `initialize` to any downstream; it
// synthesizes its own capability set (rule 4) and answers initialize
// itself via the embedded mcpserver.MCPServer.
type Aggregator struct {
	config   Config
	registry *registry.Registry
	sessions *session.Registry
	tracker  *session.Tracker
	chain    session.Chain

	downstreams *downstreamSet
	mcpServer   *mcpserver.MCPServer

	stdioServer          *mcpserver.StdioServer
	streamableHTTPServer *mcpserver.StreamableHTTPServer
	httpServers          []*http.Server

	stdioSessionID string

	mu          sync.Mutex
	started     bool
	wg          sync.WaitGroup
	errCallback func(error)
	nowFunc     func() time.Time

	// exposed{Tools,Prompts,Resources} track what's currently registered
	// on mcpServer so refreshCapabilitiesLocked can diff against the next
	// Registry snapshot: mcp-go has no bulk "replace" call, only
	// Add{Tools,Prompts,Resources}/Delete{Tools,Prompts}/RemoveResource.
	exposedTools     map[string]bool
	exposedPrompts   map[string]bool
	exposedResources map[string]bool
}

// New builds an Aggregator. Downstreams may be added before or after
// Start; no transport accepts connections until Start is called.
// sink receives every telemetry Event the Unified Tracking middleware
// emits (normally an *telemetry.Store).
func New(cfg Config, sink session.EventSink, errCallback func(error)) *Aggregator {
	if errCallback == nil {
		errCallback = func(error) {}
	}
	sessions := session.NewRegistry()
	tracker := session.NewTracker(sessions, sink)

	a := &Aggregator{
		config:         cfg,
		registry:       registry.New(cfg.CollisionMode),
		sessions:       sessions,
		tracker:        tracker,
		downstreams:    newDownstreamSet(),
		stdioSessionID: "stdio",
		errCallback:    errCallback,
		nowFunc:        time.Now,

		exposedTools:     map[string]bool{},
		exposedPrompts:   map[string]bool{},
		exposedResources: map[string]bool{},
	}
	a.chain = session.Chain{
		session.DebugMiddleware(cfg.DebugLogging),
		session.AuthMiddleware(cfg.AuthEnabled, cfg.APIKey),
		tracker.Middleware(),
	}
	return a
}

func (a *Aggregator) now() time.Time {
	if a.nowFunc != nil {
		return a.nowFunc()
	}
	return time.Now()
}

// AddDownstream starts tracking an already-started downstream client:
// discovers its current capabilities, registers them (resolving
// collisions), and exposes them on the live MCP
// server. Call once per downstream before or after Start.
func (a *Aggregator) AddDownstream(ctx context.Context, name string, client downstream.Client) error {
	if a.config.AllowedServers != nil && !a.config.AllowedServers[name] {
		return fmt.Errorf("server %q is not a member of this profile", name)
	}

	byKind, err := candidatesFor(ctx, client)
	if err != nil {
		return fmt.Errorf("discover capabilities for %q: %w", name, err)
	}

	var flat []registry.Candidate
	for _, list := range byKind {
		flat = append(flat, list...)
	}
	if err := a.registry.RegisterServer(name, flat); err != nil {
		return fmt.Errorf("register capabilities for %q: %w", name, err)
	}

	a.downstreams.put(name, client)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mcpServer != nil {
		a.refreshCapabilitiesLocked()
	}
	return nil
}

// RemoveDownstream deregisters name's capabilities and drops its client
// from the live MCP server, without shutting the client down (the caller
// owns that, per the Downstream Client Connection's independent
// lifecycle).
func (a *Aggregator) RemoveDownstream(name string) {
	a.registry.RemoveDownstream(name)
	a.downstreams.remove(name)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mcpServer != nil {
		a.refreshCapabilitiesLocked()
	}
}

func (a *Aggregator) allowedServerNames() map[string]bool {
	return a.config.AllowedServers
}

// refreshCapabilitiesLocked rewrites the live MCP server's tool/prompt/
// resource/resource-template sets to match the current Registry snapshot.
// Callers must hold a.mu.
func (a *Aggregator) refreshCapabilitiesLocked() {
	allowed := a.allowedServerNames()

	var toolsToAdd []mcpserver.ServerTool
	wantTools := map[string]bool{}
	for _, rec := range a.registry.Snapshot(registry.KindTool, allowed) {
		wantTools[rec.ExposedID] = true
		if a.exposedTools[rec.ExposedID] {
			continue
		}
		tool, ok := rec.Descriptor.(mcp.Tool)
		if !ok {
			continue
		}
		tool.Name = rec.ExposedID
		toolsToAdd = append(toolsToAdd, mcpserver.ServerTool{Tool: tool, Handler: a.toolHandler(rec.ExposedID)})
	}
	var toolsToRemove []string
	for name := range a.exposedTools {
		if !wantTools[name] {
			toolsToRemove = append(toolsToRemove, name)
		}
	}

	var promptsToAdd []mcpserver.ServerPrompt
	wantPrompts := map[string]bool{}
	for _, rec := range a.registry.Snapshot(registry.KindPrompt, allowed) {
		wantPrompts[rec.ExposedID] = true
		if a.exposedPrompts[rec.ExposedID] {
			continue
		}
		prompt, ok := rec.Descriptor.(mcp.Prompt)
		if !ok {
			continue
		}
		prompt.Name = rec.ExposedID
		promptsToAdd = append(promptsToAdd, mcpserver.ServerPrompt{Prompt: prompt, Handler: a.promptHandler(rec.ExposedID)})
	}
	var promptsToRemove []string
	for name := range a.exposedPrompts {
		if !wantPrompts[name] {
			promptsToRemove = append(promptsToRemove, name)
		}
	}

	var resourcesToAdd []mcpserver.ServerResource
	wantResources := map[string]bool{}
	for _, rec := range a.registry.Snapshot(registry.KindResource, allowed) {
		wantResources[rec.ExposedID] = true
		if a.exposedResources[rec.ExposedID] {
			continue
		}
		resource, ok := rec.Descriptor.(mcp.Resource)
		if !ok {
			continue
		}
		resource.URI = rec.ExposedID
		resourcesToAdd = append(resourcesToAdd, mcpserver.ServerResource{Resource: resource, Handler: a.resourceHandler(rec.ExposedID)})
	}
	var resourcesToRemove []string
	for name := range a.exposedResources {
		if !wantResources[name] {
			resourcesToRemove = append(resourcesToRemove, name)
		}
	}

	if len(toolsToRemove) > 0 {
		a.mcpServer.DeleteTools(toolsToRemove...)
	}
	if len(promptsToRemove) > 0 {
		a.mcpServer.DeletePrompts(promptsToRemove...)
	}
	for _, uri := range resourcesToRemove {
		a.mcpServer.RemoveResource(uri)
	}

	if len(toolsToAdd) > 0 {
		a.mcpServer.AddTools(toolsToAdd...)
	}
	if len(promptsToAdd) > 0 {
		a.mcpServer.AddPrompts(promptsToAdd...)
	}
	if len(resourcesToAdd) > 0 {
		a.mcpServer.AddResources(resourcesToAdd...)
	}

	a.exposedTools = wantTools
	a.exposedPrompts = wantPrompts
	a.exposedResources = wantResources

	// Resource templates: registered once per name, never retracted. Their
	// rewritten ExposedID already carries the "<server>:<template>" form
	//, so collisions across refreshes can't collide with a
	// live template under a different server.
	for _, rec := range a.registry.Snapshot(registry.KindResourceTemplate, allowed) {
		tmpl, ok := rec.Descriptor.(mcp.ResourceTemplate)
		if !ok {
			continue
		}
		a.mcpServer.AddResourceTemplate(tmpl, a.resourceHandler(rec.ExposedID))
	}
}

func (a *Aggregator) toolHandler(exposedName string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		clientAddr := clientAddrFromContext(ctx)
		result, err := a.dispatch(ctx, clientAddr, &session.Request{
			Kind: session.KindCallTool,
			Name: exposedName,
			Args: args,
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		toolResult, _ := result.(*mcp.CallToolResult)
		return toolResult, nil
	}
}

func (a *Aggregator) promptHandler(exposedName string) func(context.Context, mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		args := make(map[string]any, len(req.Params.Arguments))
		for k, v := range req.Params.Arguments {
			args[k] = v
		}
		clientAddr := clientAddrFromContext(ctx)
		result, err := a.dispatch(ctx, clientAddr, &session.Request{
			Kind: session.KindGetPrompt,
			Name: exposedName,
			Args: args,
		})
		if err != nil {
			return nil, err
		}
		promptResult, _ := result.(*mcp.GetPromptResult)
		return promptResult, nil
	}
}

func (a *Aggregator) resourceHandler(exposedURI string) func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		clientAddr := clientAddrFromContext(ctx)
		result, err := a.dispatch(ctx, clientAddr, &session.Request{
			Kind: session.KindReadResource,
			Name: exposedURI,
		})
		if err != nil {
			return nil, err
		}
		contents, _ := result.([]mcp.ResourceContents)
		return contents, nil
	}
}

// completionHandler serves every completion/complete request, regardless
// of whether the client is completing a prompt argument or a resource
// template argument; mcp-go routes both through this single handler and
// leaves the dispatch between them to the server.
func (a *Aggregator) completionHandler(ctx context.Context, req mcp.CompleteRequest) (*mcp.CompleteResult, error) {
	sreq := &session.Request{
		Kind:     session.KindComplete,
		ArgName:  req.Params.Argument.Name,
		ArgValue: req.Params.Argument.Value,
	}
	switch ref := req.Params.Ref.(type) {
	case mcp.PromptReference:
		sreq.CompleteRef = session.CompleteRefPrompt
		sreq.Name = ref.Name
	case mcp.ResourceReference:
		sreq.CompleteRef = session.CompleteRefResource
		sreq.Name = ref.URI
	default:
		return nil, fmt.Errorf("unsupported completion reference type %T", req.Params.Ref)
	}

	clientAddr := clientAddrFromContext(ctx)
	result, err := a.dispatch(ctx, clientAddr, sreq)
	if err != nil {
		return nil, err
	}
	completeResult, _ := result.(*mcp.CompleteResult)
	return completeResult, nil
}

// clientAddrFromContext has no general mcp-go hook for the remote address
// on every transport; HTTP transports thread it through a net/http
// middleware into ctx (see withHeaders call sites in the http.Handler
// wrapper below), stdio leaves it empty.
func clientAddrFromContext(ctx context.Context) string {
	if addr, ok := ctx.Value(clientAddrContextKey{}).(string); ok {
		return addr
	}
	return ""
}

type clientAddrContextKey struct{}

// Start builds the underlying mcp-go MCP server with the capability set
// unioned from whatever downstreams are already registered, then starts
// the configured transport. Capabilities for downstreams added later are
// pushed live via refreshCapabilitiesLocked.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("aggregator already started")
	}

	a.mcpServer = mcpserver.NewMCPServer(
		"mcpm",
		"1.0.0",
		mcpserver.WithToolCapabilities(a.registry.HasAny(registry.KindTool)),
		mcpserver.WithResourceCapabilities(a.registry.HasAny(registry.KindResource), true),
		mcpserver.WithPromptCapabilities(a.registry.HasAny(registry.KindPrompt)),
		mcpserver.WithCompletionHandler(a.completionHandler),
	)
	a.refreshCapabilitiesLocked()
	a.started = true
	a.mu.Unlock()

	switch a.config.Transport {
	case TransportStdio:
		return a.startStdio(ctx)
	default:
		return a.startStreamableHTTP(ctx)
	}
}

func (a *Aggregator) startStdio(ctx context.Context) error {
	logging.Info("aggregator", "starting stdio transport")
	a.stdioServer = mcpserver.NewStdioServer(a.mcpServer)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
			logging.Error("aggregator", err, "stdio transport exited")
			a.errCallback(err)
		}
	}()
	return nil
}

func (a *Aggregator) startStreamableHTTP(ctx context.Context) error {
	a.streamableHTTPServer = mcpserver.NewStreamableHTTPServer(a.mcpServer)
	addr := fmt.Sprintf("%s:%d", a.config.Host, a.config.Port)
	handler := a.wrapWithRequestMetadata(a.streamableHTTPServer)

	listeners, err := systemdListeners()
	if err != nil {
		logging.Warn("aggregator", "systemd socket activation check failed: %v", err)
	}

	if len(listeners) > 0 {
		logging.Info("aggregator", "using %d systemd-activated listener(s)", len(listeners))
		for i, l := range listeners {
			srv := &http.Server{Handler: handler}
			a.httpServers = append(a.httpServers, srv)
			a.wg.Add(1)
			go func(s *http.Server, l net.Listener, idx int) {
				defer a.wg.Done()
				if err := s.Serve(l); err != nil && err != http.ErrServerClosed {
					logging.Error("aggregator", err, "listener %d: streamable-http server error", idx)
					a.errCallback(err)
				}
			}(srv, l, i)
		}
		return nil
	}

	logging.Info("aggregator", "starting streamable-http transport on %s", addr)
	srv := &http.Server{Addr: addr, Handler: handler}
	a.httpServers = append(a.httpServers, srv)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("aggregator", err, "streamable-http server error")
			a.errCallback(err)
		}
	}()
	return nil
}

func systemdListeners() ([]net.Listener, error) {
	byName, err := activation.ListenersWithNames()
	if err != nil {
		return nil, err
	}
	var out []net.Listener
	for _, ls := range byName {
		out = append(out, ls...)
	}
	return out, nil
}

// wrapWithRequestMetadata threads the remote address and headers into the
// request context so session classification and the
// Auth middleware (step 2) can read them — mcp-go's HTTP transports don't
// expose either on their own.
func (a *Aggregator) wrapWithRequestMetadata(inner http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := map[string]string{}
		for k := range r.Header {
			headers[k] = r.Header.Get(k)
		}
		ctx := withHeaders(r.Context(), headers)
		ctx = context.WithValue(ctx, clientAddrContextKey{}, r.RemoteAddr)
		inner.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Stop performs the transport-facing half of shutdown: it stops accepting
// new upstream connections and returns. The caller (App) then drives
// downstream shutdown and telemetry drain itself.
func (a *Aggregator) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.started {
		return nil
	}

	for _, srv := range a.httpServers {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}

	for _, sess := range a.sessions.Live() {
		a.tracker.End(sess)
	}

	a.started = false
	return nil
}

// Wait blocks until every transport goroutine has exited, for use after
// Stop during process shutdown.
func (a *Aggregator) Wait() {
	a.wg.Wait()
}

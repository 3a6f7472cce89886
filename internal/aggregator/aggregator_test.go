package aggregator

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpm-sh/mcpm/internal/downstream"
	"github.com/mcpm-sh/mcpm/internal/registry"
	"github.com/mcpm-sh/mcpm/internal/session"
)

type fakeDownstreamClient struct {
	tools     []mcp.Tool
	callToolN string
	callArgs  map[string]any

	completeRef   any
	completeArg   string
	completeValue string
}

func (f *fakeDownstreamClient) Start(ctx context.Context) error    { return nil }
func (f *fakeDownstreamClient) Shutdown(ctx context.Context) error { return nil }
func (f *fakeDownstreamClient) State() downstream.State            { return downstream.StateHealthy }
func (f *fakeDownstreamClient) InitializeResult() *mcp.InitializeResult {
	return &mcp.InitializeResult{}
}
func (f *fakeDownstreamClient) ListTools(ctx context.Context) ([]mcp.Tool, error) { return f.tools, nil }
func (f *fakeDownstreamClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	return nil, nil
}
func (f *fakeDownstreamClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	return nil, nil
}
func (f *fakeDownstreamClient) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	return nil, nil
}
func (f *fakeDownstreamClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	f.callToolN = name
	f.callArgs = args
	return mcp.NewToolResultText("ok: " + name), nil
}
func (f *fakeDownstreamClient) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{}, nil
}
func (f *fakeDownstreamClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{}, nil
}
func (f *fakeDownstreamClient) Complete(ctx context.Context, ref any, argName, argValue string) (*mcp.CompleteResult, error) {
	f.completeRef = ref
	f.completeArg = argName
	f.completeValue = argValue
	result := &mcp.CompleteResult{}
	result.Completion.Values = []string{"matched"}
	return result, nil
}
func (f *fakeDownstreamClient) Stderr() (downstream.StderrReader, bool) { return nil, false }

type fakeSink struct{ events []session.Event }

func (f *fakeSink) Record(ev session.Event) { f.events = append(f.events, ev) }

func newTestAggregator(t *testing.T, cfg Config) (*Aggregator, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	a := New(cfg, sink, nil)
	a.mcpServer = mcpserver.NewMCPServer("mcpm-test", "0.0.0")
	return a, sink
}

func TestAddDownstream_RegistersToolsAndDispatchWorks(t *testing.T) {
	a, sink := newTestAggregator(t, Config{Transport: TransportStdio, CollisionMode: registry.ModeAuto})

	client := &fakeDownstreamClient{tools: []mcp.Tool{{Name: "search"}}}
	require.NoError(t, a.AddDownstream(t.Context(), "docs", client))

	rec, ok := a.registry.Resolve(registry.KindTool, "search")
	require.True(t, ok)
	assert.Equal(t, "docs", rec.Server)

	result, err := a.dispatch(t.Context(), "", &session.Request{Kind: session.KindCallTool, Name: "search", Args: map[string]any{"q": "x"}})
	require.NoError(t, err)
	toolResult, ok := result.(*mcp.CallToolResult)
	require.True(t, ok)
	assert.False(t, toolResult.IsError)
	assert.Equal(t, "search", client.callToolN)
	assert.Equal(t, "x", client.callArgs["q"])

	require.Len(t, sink.events, 2) // SESSION_START + TOOL_INVOCATION
	assert.Equal(t, session.EventSessionStart, sink.events[0].Type)
	assert.Equal(t, session.EventToolInvocation, sink.events[1].Type)
	assert.True(t, sink.events[1].Success)
}

func TestAddDownstream_ToolCollisionGetsRewritten(t *testing.T) {
	a, _ := newTestAggregator(t, Config{Transport: TransportStdio, CollisionMode: registry.ModeAuto})

	require.NoError(t, a.AddDownstream(t.Context(), "alpha", &fakeDownstreamClient{tools: []mcp.Tool{{Name: "search"}}}))
	require.NoError(t, a.AddDownstream(t.Context(), "beta", &fakeDownstreamClient{tools: []mcp.Tool{{Name: "search"}}}))

	_, ok := a.registry.Resolve(registry.KindTool, "search")
	assert.True(t, ok, "first registrant keeps the bare name")

	rec, ok := a.registry.Resolve(registry.KindTool, "beta_t_search")
	require.True(t, ok)
	assert.Equal(t, "beta", rec.Server)
}

func TestAddDownstream_RejectsServerOutsideProfileAllowList(t *testing.T) {
	a, _ := newTestAggregator(t, Config{
		Transport:      TransportStdio,
		CollisionMode:  registry.ModeAuto,
		AllowedServers: map[string]bool{"alpha": true},
	})

	err := a.AddDownstream(t.Context(), "beta", &fakeDownstreamClient{})
	assert.Error(t, err)
}

func TestDispatch_UnknownToolReturnsErrorResult(t *testing.T) {
	a, _ := newTestAggregator(t, Config{Transport: TransportStdio, CollisionMode: registry.ModeAuto})

	result, err := a.dispatch(t.Context(), "", &session.Request{Kind: session.KindCallTool, Name: "missing"})
	require.NoError(t, err)
	toolResult, ok := result.(*mcp.CallToolResult)
	require.True(t, ok)
	assert.True(t, toolResult.IsError)
}

func TestDispatch_CompleteResolvesPromptReference(t *testing.T) {
	a, _ := newTestAggregator(t, Config{Transport: TransportStdio, CollisionMode: registry.ModeAuto})

	client := &fakeDownstreamClient{}
	a.registry.RegisterServer("docs", []registry.Candidate{
		{Kind: registry.KindPrompt, OriginalID: "summarize", Descriptor: mcp.Prompt{Name: "summarize"}},
	})
	a.downstreams.put("docs", client)

	result, err := a.dispatch(t.Context(), "", &session.Request{
		Kind:        session.KindComplete,
		Name:        "summarize",
		CompleteRef: session.CompleteRefPrompt,
		ArgName:     "style",
		ArgValue:    "for",
	})
	require.NoError(t, err)
	completeResult, ok := result.(*mcp.CompleteResult)
	require.True(t, ok)
	assert.Equal(t, []string{"matched"}, completeResult.Completion.Values)

	assert.Equal(t, mcp.PromptReference{Type: "ref/prompt", Name: "summarize"}, client.completeRef)
	assert.Equal(t, "style", client.completeArg)
	assert.Equal(t, "for", client.completeValue)
}

func TestDispatch_CompleteResolvesResourceReference(t *testing.T) {
	a, _ := newTestAggregator(t, Config{Transport: TransportStdio, CollisionMode: registry.ModeAuto})

	client := &fakeDownstreamClient{}
	a.registry.RegisterServer("docs", []registry.Candidate{
		{Kind: registry.KindResource, OriginalID: "file:///readme.md", Descriptor: mcp.Resource{URI: "file:///readme.md"}},
	})
	a.downstreams.put("docs", client)

	rec, ok := a.registry.Resolve(registry.KindResource, "file:///readme.md")
	require.True(t, ok)

	_, err := a.dispatch(t.Context(), "", &session.Request{
		Kind:        session.KindComplete,
		Name:        rec.ExposedID,
		CompleteRef: session.CompleteRefResource,
		ArgName:     "path",
		ArgValue:    "re",
	})
	require.NoError(t, err)
	assert.Equal(t, mcp.ResourceReference{Type: "ref/resource", URI: "file:///readme.md"}, client.completeRef)
}

func TestDispatch_CompleteUnknownReferenceErrors(t *testing.T) {
	a, _ := newTestAggregator(t, Config{Transport: TransportStdio, CollisionMode: registry.ModeAuto})

	_, err := a.dispatch(t.Context(), "", &session.Request{
		Kind:        session.KindComplete,
		Name:        "missing",
		CompleteRef: session.CompleteRefPrompt,
	})
	assert.Error(t, err)
}

func TestDispatch_AuthRejectsHTTPRequestWithoutBearer(t *testing.T) {
	a, _ := newTestAggregator(t, Config{
		Transport:   TransportStreamableHTTP,
		AuthEnabled: true,
		APIKey:      "secret",
	})

	ctx := withHeaders(t.Context(), map[string]string{})
	_, err := a.dispatch(ctx, "203.0.113.1:1234", &session.Request{Kind: session.KindCallTool, Name: "x"})
	assert.ErrorIs(t, err, session.ErrAuthFailed)
}

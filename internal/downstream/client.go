package downstream

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcpm-sh/mcpm/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// baseClient implements the operations shared by every transport: state
// tracking, deadline application, and the thin wrappers around the
// underlying mark3labs/mcp-go client.MCPClient. Transport-specific types
// (StdioClient, HTTPClient) embed this and only implement Start/Shutdown
// and Stderr themselves.
type baseClient struct {
	mu    sync.RWMutex
	inner client.MCPClient
	state State
	init  *mcp.InitializeResult

	subsystem string // used only for log messages, e.g. "downstream:github"
}

func (b *baseClient) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *baseClient) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

func (b *baseClient) InitializeResult() *mcp.InitializeResult {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.init
}

// withDeadline applies DefaultCallTimeout when ctx carries no deadline of
// its own.
func withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultCallTimeout)
}

func (b *baseClient) ready() (client.MCPClient, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.state != StateHealthy || b.inner == nil {
		return nil, fmt.Errorf("downstream client not healthy (state=%s)", b.state)
	}
	return b.inner, nil
}

func (b *baseClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	c, err := b.ready()
	if err != nil {
		return nil, err
	}
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return result.Tools, nil
}

func (b *baseClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	c, err := b.ready()
	if err != nil {
		return nil, err
	}
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	result, err := c.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	return result.Prompts, nil
}

func (b *baseClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	c, err := b.ready()
	if err != nil {
		return nil, err
	}
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	result, err := c.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return result.Resources, nil
}

func (b *baseClient) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	c, err := b.ready()
	if err != nil {
		return nil, err
	}
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	result, err := c.ListResourceTemplates(ctx, mcp.ListResourceTemplatesRequest{})
	if err != nil {
		return nil, fmt.Errorf("list resource templates: %w", err)
	}
	return result.ResourceTemplates, nil
}

func (b *baseClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	c, err := b.ready()
	if err != nil {
		return nil, err
	}
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := c.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", name, err)
	}
	return result, nil
}

func (b *baseClient) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	c, err := b.ready()
	if err != nil {
		return nil, err
	}
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	req := mcp.GetPromptRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := c.GetPrompt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get prompt %s: %w", name, err)
	}
	return result, nil
}

func (b *baseClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	c, err := b.ready()
	if err != nil {
		return nil, err
	}
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	result, err := c.ReadResource(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("read resource %s: %w", uri, err)
	}
	return result, nil
}

func (b *baseClient) Complete(ctx context.Context, ref any, argName, argValue string) (*mcp.CompleteResult, error) {
	c, err := b.ready()
	if err != nil {
		return nil, err
	}
	ctx, cancel := withDeadline(ctx)
	defer cancel()
	req := mcp.CompleteRequest{}
	req.Params.Ref = ref
	req.Params.Argument.Name = argName
	req.Params.Argument.Value = argValue
	result, err := c.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	return result, nil
}

func (b *baseClient) Stderr() (StderrReader, bool) {
	return nil, false
}

// initialize performs the MCP handshake shared by every transport and
// stores the result, transitioning starting -> healthy on success.
func (b *baseClient) initialize(ctx context.Context, inner client.MCPClient) error {
	ctx, cancel := withDeadline(ctx)
	defer cancel()

	result, err := inner.Initialize(ctx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: "2024-11-05",
			ClientInfo: mcp.Implementation{
				Name:    "mcpm",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		b.setState(StateFailed)
		return fmt.Errorf("mcp initialize: %w", err)
	}

	b.mu.Lock()
	b.inner = inner
	b.init = result
	b.state = StateHealthy
	b.mu.Unlock()

	logging.Debug(b.subsystem, "initialized: server=%s version=%s tools=%v resources=%v prompts=%v",
		result.ServerInfo.Name, result.ServerInfo.Version,
		result.Capabilities.Tools != nil, result.Capabilities.Resources != nil, result.Capabilities.Prompts != nil)
	return nil
}

func (b *baseClient) shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateClosed || b.inner == nil {
		b.state = StateClosed
		return nil
	}
	b.state = StateShuttingDown
	err := b.inner.Close()
	b.state = StateClosed
	b.inner = nil
	return err
}

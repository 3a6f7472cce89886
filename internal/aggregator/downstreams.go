package aggregator

import (
	"context"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpm-sh/mcpm/internal/downstream"
	"github.com/mcpm-sh/mcpm/internal/registry"
)

// serializedClient wraps a downstream.Client with a mutex so at most one
// method is in flight at a time").
type serializedClient struct {
	mu     sync.Mutex
	client downstream.Client
}

func (s *serializedClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.CallTool(ctx, name, args)
}

func (s *serializedClient) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.GetPrompt(ctx, name, args)
}

func (s *serializedClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.ReadResource(ctx, uri)
}

func (s *serializedClient) Complete(ctx context.Context, ref any, argName, argValue string) (*mcp.CompleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Complete(ctx, ref, argName, argValue)
}

// downstreamSet tracks every live downstream.Client by server name and
// provides the serialized access 
type downstreamSet struct {
	mu      sync.RWMutex
	clients map[string]*serializedClient
}

func newDownstreamSet() *downstreamSet {
	return &downstreamSet{clients: map[string]*serializedClient{}}
}

func (d *downstreamSet) put(name string, client downstream.Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[name] = &serializedClient{client: client}
}

func (d *downstreamSet) get(name string) (*serializedClient, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.clients[name]
	return c, ok
}

func (d *downstreamSet) remove(name string) (downstream.Client, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.clients[name]
	if !ok {
		return nil, false
	}
	delete(d.clients, name)
	return c.client, true
}

func (d *downstreamSet) names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.clients))
	for name := range d.clients {
		out = append(out, name)
	}
	return out
}

// candidatesFor discovers the current tool/prompt/resource/resource-template
// set of a freshly started downstream, for handing to the Capability
// Registry.
func candidatesFor(ctx context.Context, client downstream.Client) (map[registry.Kind][]registry.Candidate, error) {
	out := map[registry.Kind][]registry.Candidate{}

	tools, err := client.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tools {
		out[registry.KindTool] = append(out[registry.KindTool], registry.Candidate{
			Kind: registry.KindTool, OriginalID: t.Name, Descriptor: t,
		})
	}

	prompts, err := client.ListPrompts(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range prompts {
		out[registry.KindPrompt] = append(out[registry.KindPrompt], registry.Candidate{
			Kind: registry.KindPrompt, OriginalID: p.Name, Descriptor: p,
		})
	}

	resources, err := client.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range resources {
		out[registry.KindResource] = append(out[registry.KindResource], registry.Candidate{
			Kind: registry.KindResource, OriginalID: r.URI, Descriptor: r,
		})
	}

	templates, err := client.ListResourceTemplates(ctx)
	if err != nil {
		return nil, err
	}
	for _, rt := range templates {
		out[registry.KindResourceTemplate] = append(out[registry.KindResourceTemplate], registry.Candidate{
			Kind: registry.KindResourceTemplate, OriginalID: rt.URITemplate.Raw(), Descriptor: rt,
		})
	}

	return out, nil
}

package downstream

import (
	"context"
	"fmt"

	"github.com/mcpm-sh/mcpm/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
)

// HTTPTransport selects the wire transport an HTTPClient speaks to a
// RemoteServer. streamable-http is the default; sse is kept for
// downstreams that only implement the older transport.
type HTTPTransport string

const (
	TransportStreamableHTTP HTTPTransport = "streamable-http"
	TransportSSE            HTTPTransport = "sse"
)

// HTTPClient connects to a downstream MCP server reachable over HTTP or
// SSE.
type HTTPClient struct {
	baseClient
	url       string
	headers   map[string]string
	transport HTTPTransport
}

// NewHTTPClient builds a remote downstream client for url, using the given
// headers on every request and the chosen wire transport.
func NewHTTPClient(name, url string, headers map[string]string, wire HTTPTransport) *HTTPClient {
	if wire == "" {
		wire = TransportStreamableHTTP
	}
	return &HTTPClient{
		baseClient: baseClient{state: StateStarting, subsystem: "downstream:" + name},
		url:        url,
		headers:    headers,
		transport:  wire,
	}
}

func (c *HTTPClient) Start(ctx context.Context) error {
	logging.Debug(c.subsystem, "starting %s downstream: %s", c.transport, c.url)

	var inner client.MCPClient
	var err error

	switch c.transport {
	case TransportSSE:
		var opts []transport.ClientOption
		if len(c.headers) > 0 {
			opts = append(opts, transport.WithHeaders(c.headers))
		}
		var sse *client.Client
		sse, err = client.NewSSEMCPClient(c.url, opts...)
		if err == nil {
			if startErr := sse.Start(ctx); startErr != nil {
				c.setState(StateFailed)
				return fmt.Errorf("start sse transport for %s: %w", c.url, startErr)
			}
			inner = sse
		}
	default:
		var opts []transport.StreamableHTTPCOption
		if len(c.headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(c.headers))
		}
		inner, err = client.NewStreamableHttpClient(c.url, opts...)
	}
	if err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("connect %s: %w", c.url, err)
	}

	if err := c.initialize(ctx, inner); err != nil {
		if closeErr := inner.Close(); closeErr != nil {
			logging.Debug(c.subsystem, "close after failed initialize: %v", closeErr)
		}
		return err
	}
	return nil
}

func (c *HTTPClient) Shutdown(ctx context.Context) error {
	return c.shutdown(ctx)
}

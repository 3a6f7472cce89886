package downstream

import (
	"context"
	"fmt"
	"os"

	"github.com/mcpm-sh/mcpm/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
)

// StdioClient connects to a downstream MCP server launched as a local
// child process communicating over stdin/stdout.
type StdioClient struct {
	baseClient
	command string
	args    []string
	env     map[string]string
}

// NewStdioClient builds a stdio downstream client. env is the
// user-configured environment for the StdioServer catalog entry; it may be
// nil or empty — Start always layers in the env floor required by S6.
func NewStdioClient(name, command string, args []string, env map[string]string) *StdioClient {
	return &StdioClient{
		baseClient: baseClient{state: StateStarting, subsystem: "downstream:" + name},
		command:    command,
		args:       args,
		env:        env,
	}
}

// envFloor builds the full environment passed to the child process: the
// user-supplied env, unioned with the MCPM_STDIO_SERVER sentinel and the
// host's PATH (S6 — an empty env passed to exec can mean "inherit
// nothing", dropping PATH and breaking command resolution).
func (c *StdioClient) envFloor() []string {
	merged := make(map[string]string, len(c.env)+2)
	for k, v := range c.env {
		merged[k] = v
	}
	if _, ok := merged["PATH"]; !ok {
		merged["PATH"] = os.Getenv("PATH")
	}

	out := make([]string, 0, len(merged)+1)
	out = append(out, StdioEnvFlag)
	for k, v := range merged {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

func (c *StdioClient) Start(ctx context.Context) error {
	logging.Debug(c.subsystem, "starting stdio downstream: %s %v", c.command, c.args)

	inner, err := client.NewStdioMCPClient(c.command, c.envFloor(), c.args...)
	if err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("spawn %s: %w", c.command, err)
	}

	if err := c.initialize(ctx, inner); err != nil {
		if closeErr := inner.Close(); closeErr != nil {
			logging.Debug(c.subsystem, "close after failed initialize: %v", closeErr)
		}
		return err
	}
	return nil
}

func (c *StdioClient) Shutdown(ctx context.Context) error {
	return c.shutdown(ctx)
}

// Stderr exposes the subprocess's stderr stream, when connected.
func (c *StdioClient) Stderr() (StderrReader, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateHealthy || c.inner == nil {
		return nil, false
	}
	if concrete, ok := c.inner.(*client.Client); ok {
		return client.GetStderr(concrete)
	}
	return nil, false
}

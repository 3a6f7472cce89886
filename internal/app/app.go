// Package app is the dependency-injection root: one App struct wiring
// Catalog, Telemetry Store, Aggregator and (when sharing) Tunnel Client as
// plain fields, built once per process and passed down explicitly — no
// package-level globals.
package app

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcpm-sh/mcpm/internal/aggregator"
	"github.com/mcpm-sh/mcpm/internal/catalog"
	"github.com/mcpm-sh/mcpm/internal/clierr"
	"github.com/mcpm-sh/mcpm/internal/downstream"
	"github.com/mcpm-sh/mcpm/internal/registry"
	"github.com/mcpm-sh/mcpm/internal/session"
	"github.com/mcpm-sh/mcpm/internal/telemetry"
	"github.com/mcpm-sh/mcpm/internal/tunnel"
	"github.com/mcpm-sh/mcpm/pkg/logging"
)

// Config configures one App instance.
type Config struct {
	CatalogDir    string
	TelemetryPath string

	Host string
	Port int

	CollisionMode registry.Mode
	CallTimeout   time.Duration

	DebugLogging bool
	AuthEnabled  bool
	APIKey       string
}

// App wires the Catalog, Telemetry Store, and (per-run) Aggregator and
// Tunnel together, and owns the process-shutdown ordering between them.
type App struct {
	cfg Config

	catalog   *catalog.Catalog
	telemetry *telemetry.Store
	watcher   *catalog.Watcher

	mu          sync.Mutex
	agg         *aggregator.Aggregator
	downstreams map[string]downstream.Client
	tun         *tunnel.Tunnel
}

// New opens the Catalog and Telemetry Store and starts the catalog file
// watcher. The returned App has no live Aggregator until RunServer,
// RunProfile, or Share is called.
func New(cfg Config) (*App, error) {
	cat, err := catalog.Open(cfg.CatalogDir)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	store, err := telemetry.Open(cfg.TelemetryPath)
	if err != nil {
		return nil, &clierr.TelemetryWriteError{Reason: err}
	}

	a := &App{
		cfg:         cfg,
		catalog:     cat,
		telemetry:   store,
		downstreams: map[string]downstream.Client{},
	}

	watcher, err := catalog.WatchCatalog(cat, func() {
		logging.Info("app", "catalog reloaded from disk")
	})
	if err != nil {
		logging.Warn("app", "catalog file watcher unavailable: %v", err)
	} else {
		a.watcher = watcher
	}

	return a, nil
}

// Catalog returns the underlying Catalog, so CLI commands that only read
// or edit catalog state (no aggregator involved) can reach it directly.
func (a *App) Catalog() *catalog.Catalog { return a.catalog }

// Telemetry returns the underlying Telemetry Store for usage-reporting
// CLI commands.
func (a *App) Telemetry() *telemetry.Store { return a.telemetry }

// buildDownstreamClient constructs the downstream.Client matching cfg's
// concrete type.
func buildDownstreamClient(name string, cfg catalog.ServerConfig) (downstream.Client, error) {
	switch s := cfg.(type) {
	case *catalog.StdioServer:
		return downstream.NewStdioClient(name, s.Command, s.Args, s.Env), nil
	case *catalog.RemoteServer:
		return downstream.NewHTTPClient(name, s.URL, s.Headers, downstream.TransportStreamableHTTP), nil
	default:
		return nil, fmt.Errorf("unknown server config kind for %q", name)
	}
}

// startDownstreams starts one client per name concurrently. A downstream that fails to start is logged and dropped per
// downstream-startup-failure policy; the aggregator proceeds
// with whatever started successfully. Returns an error only when none of
// the requested downstreams started.
func (a *App) startDownstreams(ctx context.Context, names []string) (map[string]downstream.Client, error) {
	type result struct {
		name   string
		client downstream.Client
		err    error
	}
	results := make([]result, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		cfg, ok := a.catalog.GetServer(name)
		if !ok {
			results[i] = result{name: name, err: fmt.Errorf("server %q not found in catalog", name)}
			continue
		}
		g.Go(func() error {
			client, err := buildDownstreamClient(name, cfg)
			if err != nil {
				results[i] = result{name: name, err: err}
				return nil
			}
			if err := client.Start(gctx); err != nil {
				results[i] = result{name: name, err: &clierr.DownstreamStartupError{Server: name, Reason: err}}
				return nil
			}
			results[i] = result{name: name, client: client}
			return nil
		})
	}
	_ = g.Wait()

	started := map[string]downstream.Client{}
	for _, r := range results {
		if r.err != nil {
			logging.Error("app", r.err, "downstream %q dropped", r.name)
			continue
		}
		started[r.name] = r.client
	}
	if len(names) > 0 && len(started) == 0 {
		return nil, fmt.Errorf("no downstream server started successfully")
	}
	return started, nil
}

// newAggregator builds and registers the Aggregator config shared by
// RunServer/RunProfile/Share.
func (a *App) newAggregator(transport aggregator.Transport, action session.Action, profileName string, allowed map[string]bool) *aggregator.Aggregator {
	return aggregator.New(aggregator.Config{
		Host:           a.cfg.Host,
		Port:           a.cfg.Port,
		Transport:      transport,
		CollisionMode:  a.cfg.CollisionMode,
		AllowedServers: allowed,
		ProfileName:    profileName,
		Action:         action,
		CallTimeout:    a.cfg.CallTimeout,
		DebugLogging:   a.cfg.DebugLogging,
		AuthEnabled:    a.cfg.AuthEnabled,
		APIKey:         a.cfg.APIKey,
	}, a.telemetry, func(err error) { logging.Error("app", err, "aggregator transport error") })
}

// RunServer starts the aggregator over stdio for a single catalog server.
// With only one server ever registered, the configured CollisionMode
// never actually observes a collision to rewrite or reject.
func (a *App) RunServer(ctx context.Context, serverName string) error {
	if !a.catalog.ServerExists(serverName) {
		return clierr.NewValidation("server %q not found in catalog", serverName)
	}

	agg := a.newAggregator(aggregator.TransportStdio, session.ActionRun, "", nil)
	started, err := a.startDownstreams(ctx, []string{serverName})
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.agg = agg
	a.downstreams = started
	a.mu.Unlock()

	for name, client := range started {
		if err := agg.AddDownstream(ctx, name, client); err != nil {
			return fmt.Errorf("register %q: %w", name, err)
		}
	}
	return agg.Start(ctx)
}

// RunProfile starts the aggregator for every server tagged with profile.
// transport selects stdio or streamable-http.
func (a *App) RunProfile(ctx context.Context, profile string, transport aggregator.Transport) error {
	action := session.ActionProfileRun
	if transport == aggregator.TransportStreamableHTTP {
		action = session.ActionRunHTTP
	}
	return a.startProfileAggregator(ctx, profile, transport, action)
}

// startProfileAggregator is the shared core of RunProfile and Share: both
// resolve a profile's tagged servers, start them concurrently, and bring
// up one Aggregator over the requested transport. Only the recorded
// session.Action differs.
func (a *App) startProfileAggregator(ctx context.Context, profile string, transport aggregator.Transport, action session.Action) error {
	if !a.catalog.ProfileExists(profile) {
		return clierr.NewValidation("profile %q not found", profile)
	}
	servers := a.catalog.ServersByProfileTag(profile)
	if len(servers) == 0 {
		return clierr.NewValidation("profile %q has no tagged servers", profile)
	}

	allowed := make(map[string]bool, len(servers))
	names := make([]string, 0, len(servers))
	for _, s := range servers {
		allowed[s.ServerName()] = true
		names = append(names, s.ServerName())
	}

	agg := a.newAggregator(transport, action, profile, allowed)

	started, err := a.startDownstreams(ctx, names)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.agg = agg
	a.downstreams = started
	a.mu.Unlock()

	for _, name := range names {
		client, ok := started[name]
		if !ok {
			continue
		}
		if err := agg.AddDownstream(ctx, name, client); err != nil {
			return fmt.Errorf("register %q: %w", name, err)
		}
	}
	return agg.Start(ctx)
}

// Share starts the aggregator over streamable-http on an auto-picked local
// port for profile, then establishes a Tunnel Client publishing it through
// shareAddr. Returns the public URL the share service
// assigned. A tunnel failure is fatal to the whole operation and tears the
// aggregator back down.
func (a *App) Share(ctx context.Context, profile, shareAddr string, plainHTTP bool) (string, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:0", a.cfg.Host))
	if err != nil {
		return "", fmt.Errorf("reserve local port: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	a.mu.Lock()
	a.cfg.Port = port
	a.mu.Unlock()

	if err := a.startProfileAggregator(ctx, profile, aggregator.TransportStreamableHTTP, session.ActionProxy); err != nil {
		return "", err
	}

	tun, url, err := tunnel.Start(tunnel.Config{
		ShareAddr:     shareAddr,
		LocalHTTPPort: port,
		PlainHTTP:     plainHTTP,
	})
	if err != nil {
		_ = a.Shutdown(ctx)
		return "", &clierr.TunnelError{Reason: err}
	}

	a.mu.Lock()
	a.tun = tun
	a.mu.Unlock()
	return url, nil
}

// Shutdown performs the ordered process shutdown:
// (a) the Aggregator stops accepting new connections and emits SESSION_END
// for every session still live at that point, (b) every downstream client
// is signalled to shut down, (c) the telemetry queue is drained with a 2s
// deadline — which also flushes the SESSION_END events (a) just enqueued,
// (d) the tunnel, if any, is killed last so in-flight shares drain first.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	agg := a.agg
	downstreams := a.downstreams
	tun := a.tun
	watcher := a.watcher
	a.mu.Unlock()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if agg != nil {
		record(agg.Stop(ctx))
	}

	for name, client := range downstreams {
		if err := client.Shutdown(ctx); err != nil {
			logging.Error("app", err, "downstream %q shutdown error", name)
		}
	}

	record(a.telemetry.Close(ctx))

	if watcher != nil {
		watcher.Close()
	}

	if tun != nil {
		record(tun.Kill())
	}

	if agg != nil {
		agg.Wait()
	}
	return firstErr
}

package main

import (
	"time"

	"github.com/mcpm-sh/mcpm/internal/app"
	"github.com/mcpm-sh/mcpm/internal/registry"
)

// callTimeout bounds every downstream tool/prompt/resource call the
// aggregator forwards.
const callTimeout = 30 * time.Second

// newApp builds the shared DI root every subcommand uses, wiring the flags
// common to all of them.
func newApp(host string, port int) (*app.App, error) {
	return app.New(app.Config{
		CatalogDir:    catalogDir(),
		TelemetryPath: defaultTelemetryPath(catalogDir()),
		Host:          host,
		Port:          port,
		CollisionMode: collisionMode(),
		CallTimeout:   callTimeout,
		DebugLogging:  flagDebug,
	})
}

// collisionMode resolves the validated --collision-mode flag (checked in
// root.go's PersistentPreRunE) to a registry.Mode.
func collisionMode() registry.Mode {
	if flagCollisionMode == "strict" {
		return registry.ModeStrict
	}
	return registry.ModeAuto
}

package app

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/mcpm-sh/mcpm/internal/catalog"
	"github.com/mcpm-sh/mcpm/internal/clierr"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	a, err := New(Config{
		CatalogDir:    filepath.Join(dir, "catalog"),
		TelemetryPath: filepath.Join(dir, "telemetry.db"),
		Host:          "127.0.0.1",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.Shutdown(t.Context()) })
	return a
}

func TestRunServer_RejectsUnknownServer(t *testing.T) {
	a := newTestApp(t)

	err := a.RunServer(t.Context(), "ghost")

	var validation *clierr.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("RunServer error = %v, want a *clierr.ValidationError", err)
	}
}

func TestRunProfile_RejectsUnknownProfile(t *testing.T) {
	a := newTestApp(t)

	err := a.RunProfile(t.Context(), "ghost-profile", "stdio")

	var validation *clierr.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("RunProfile error = %v, want a *clierr.ValidationError", err)
	}
}

func TestRunProfile_RejectsProfileWithNoTaggedServers(t *testing.T) {
	a := newTestApp(t)
	if err := a.catalog.CreateProfileMetadata(catalog.ProfileMetadata{Name: "empty"}); err != nil {
		t.Fatalf("seed profile metadata: %v", err)
	}

	err := a.RunProfile(t.Context(), "empty", "stdio")

	var validation *clierr.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("RunProfile error = %v, want a *clierr.ValidationError", err)
	}
}

func TestShutdown_IsANoOpWithNoLiveAggregator(t *testing.T) {
	a := newTestApp(t)

	if err := a.Shutdown(t.Context()); err != nil {
		t.Fatalf("Shutdown on an idle App should succeed, got: %v", err)
	}
}

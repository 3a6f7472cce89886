package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(t.TempDir())
	require.NoError(t, err)
	return c
}

func TestAddServer_RejectsDuplicateUnlessForced(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.AddServer(&StdioServer{Name: "fs", Command: "mcp-fs"}, false))

	err := c.AddServer(&StdioServer{Name: "fs", Command: "mcp-fs-v2"}, false)
	assert.Error(t, err)

	require.NoError(t, c.AddServer(&StdioServer{Name: "fs", Command: "mcp-fs-v2"}, true))
	cfg, ok := c.GetServer("fs")
	require.True(t, ok)
	assert.Equal(t, "mcp-fs-v2", cfg.(*StdioServer).Command)
}

func TestAddProfileTag_ThenServersByProfileTagAgreesWithVirtualProfiles(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.AddServer(&StdioServer{Name: "fs", Command: "mcp-fs"}, false))
	require.NoError(t, c.AddServer(&RemoteServer{Name: "web", URL: "https://example.com/mcp"}, false))

	require.NoError(t, c.AddProfileTag("fs", "dev"))
	require.NoError(t, c.AddProfileTag("web", "dev"))

	tagged := c.ServersByProfileTag("dev")
	require.Len(t, tagged, 2)

	vp := c.VirtualProfiles()
	require.Len(t, vp["dev"], 2)
	assert.Equal(t, tagged[0].ServerName(), vp["dev"][0].ServerName())
	assert.Equal(t, tagged[1].ServerName(), vp["dev"][1].ServerName())
}

func TestRemoveProfileTag_IsSymmetricWithAdd(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.AddServer(&StdioServer{Name: "fs", Command: "mcp-fs"}, false))

	require.NoError(t, c.AddProfileTag("fs", "dev"))
	assert.True(t, c.ProfileExists("dev"))

	require.NoError(t, c.RemoveProfileTag("fs", "dev"))
	cfg, _ := c.GetServer("fs")
	assert.Empty(t, cfg.Tags())
	assert.False(t, c.ProfileExists("dev"))
}

func TestAddProfileTag_IsIdempotent(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.AddServer(&StdioServer{Name: "fs", Command: "mcp-fs"}, false))
	require.NoError(t, c.AddProfileTag("fs", "dev"))
	require.NoError(t, c.AddProfileTag("fs", "dev"))

	cfg, _ := c.GetServer("fs")
	assert.Equal(t, []string{"dev"}, cfg.Tags())
}

func TestGetCompleteProfile_ExistsWithMetadataOnlyOrTagOnly(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.AddServer(&StdioServer{Name: "fs", Command: "mcp-fs"}, false))
	require.NoError(t, c.AddProfileTag("fs", "dev"))
	require.NoError(t, c.CreateProfileMetadata(ProfileMetadata{Name: "staging", Description: "no servers yet"}))

	devProfile := c.GetCompleteProfile("dev")
	assert.Len(t, devProfile.Servers, 1)
	assert.Empty(t, devProfile.Metadata.Name)

	stagingProfile := c.GetCompleteProfile("staging")
	assert.Empty(t, stagingProfile.Servers)
	assert.Equal(t, "staging", stagingProfile.Metadata.Name)
}

func TestDeleteProfile_UntagsServersButKeepsThem(t *testing.T) {
	c := openTemp(t)
	require.NoError(t, c.AddServer(&StdioServer{Name: "fs", Command: "mcp-fs"}, false))
	require.NoError(t, c.AddProfileTag("fs", "dev"))
	require.NoError(t, c.CreateProfileMetadata(ProfileMetadata{Name: "dev"}))

	require.NoError(t, c.DeleteProfile("dev"))

	assert.False(t, c.ProfileExists("dev"))
	assert.True(t, c.ServerExists("fs"))
}

func TestSave_IsIdempotentAcrossReload(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, c.AddServer(&StdioServer{Name: "fs", Command: "mcp-fs", Args: []string{"--root", "/tmp"}}, false))
	require.NoError(t, c.AddServer(&RemoteServer{Name: "web", URL: "https://example.com/mcp"}, false))
	require.NoError(t, c.AddProfileTag("fs", "dev"))

	first, err := os.ReadFile(filepath.Join(dir, serversFileName))
	require.NoError(t, err)

	reloaded, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, reloaded.UpdateServer(mustGet(t, reloaded, "fs")))

	second, err := os.ReadFile(filepath.Join(dir, serversFileName))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func mustGet(t *testing.T, c *Catalog, name string) ServerConfig {
	t.Helper()
	cfg, ok := c.GetServer(name)
	require.True(t, ok)
	return cfg
}

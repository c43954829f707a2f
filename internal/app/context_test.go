package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dillipm021073/arc-studio-sub001/internal/config"
	"github.com/dillipm021073/arc-studio-sub001/internal/logging"
)

func TestInitCreatesConfigAndAdmin(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	res, err := Init(ctx, dir, "root")
	require.NoError(t, err)
	assert.True(t, res.ConfigCreated)
	assert.NotEmpty(t, res.Migrations)
	assert.FileExists(t, config.Path(dir))
	assert.FileExists(t, res.Database)

	again, err := Init(ctx, dir, "")
	require.NoError(t, err)
	assert.False(t, again.ConfigCreated)
	assert.Empty(t, again.Migrations)

	ws, err := Open(ctx, dir, Options{Logger: logging.Discard()})
	require.NoError(t, err)
	defer ws.Close()
	admin, err := ws.Engine.Auth.IsAdmin(ctx, nil, "root")
	require.NoError(t, err)
	assert.True(t, admin)
	other, err := ws.Engine.Auth.IsAdmin(ctx, nil, "someone")
	require.NoError(t, err)
	assert.False(t, other)
}

func TestOpenReadsConfigOverride(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("locks:\n  ttl: 2h\n"), 0o644))

	ws, err := Open(ctx, dir, Options{ConfigPath: path, Logger: logging.Discard(), Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	defer ws.Close()
	assert.Equal(t, 2*time.Hour, ws.Config.Locks.TTL)
	assert.NotNil(t, ws.Engine.Metrics)
	assert.Equal(t, config.Default().Graph.MaxDepth, ws.Config.Graph.MaxDepth)
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(dir), []byte("locks:\n  ttl: -1h\n"), 0o644))
	_, err := Open(context.Background(), dir, Options{Logger: logging.Discard()})
	assert.Error(t, err)
}

func TestGrantAdminRequiresActor(t *testing.T) {
	ctx := context.Background()
	ws, err := Open(ctx, t.TempDir(), Options{Logger: logging.Discard()})
	require.NoError(t, err)
	defer ws.Close()
	assert.Error(t, GrantAdmin(ctx, ws.Engine.Repo, " "))
}

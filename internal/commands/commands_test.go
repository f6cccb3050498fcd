package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/balkashynov/wotrack/internal/config"
	"github.com/balkashynov/wotrack/internal/db"
	"github.com/balkashynov/wotrack/internal/filestore"
	"github.com/balkashynov/wotrack/internal/mirror"
	"github.com/balkashynov/wotrack/internal/models"
	"github.com/balkashynov/wotrack/internal/tracker"
)

func TestBuildCreateRequest(t *testing.T) {
	available := config.DefaultProcesses

	t.Run("smart line", func(t *testing.T) {
		req, err := buildCreateRequest("#4410 Caderno espiral x200 procs:1,3", "", "", 0, nil, available)
		require.NoError(t, err)
		assert.Equal(t, "4410", req.OrderNumber)
		assert.Equal(t, "Caderno espiral", req.Product)
		assert.Equal(t, 200, req.Quantity)
		assert.Equal(t, []string{available[0], available[2]}, req.Processes)
	})

	t.Run("flags win over the line", func(t *testing.T) {
		req, err := buildCreateRequest("#4410 Caderno x200", "os-77", "Agenda", 3, []string{"montagem do kit"}, available)
		require.NoError(t, err)
		assert.Equal(t, "77", req.OrderNumber)
		assert.Equal(t, "Agenda", req.Product)
		assert.Equal(t, 3, req.Quantity)
		assert.Equal(t, []string{"Montagem do kit"}, req.Processes)
	})

	t.Run("no processes means the defaults", func(t *testing.T) {
		req, err := buildCreateRequest("#1 Caderno x2", "", "", 0, nil, available)
		require.NoError(t, err)
		assert.Nil(t, req.Processes)
	})

	t.Run("bad process index", func(t *testing.T) {
		_, err := buildCreateRequest("#1 Caderno x2 procs:9", "", "", 0, nil, available)
		assert.ErrorContains(t, err, "out of range")
	})
}

func TestOpenStorePicksBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c := config.DefaultConfig()
	c.Storage.Dir = dir
	c.Storage.SQLitePath = filepath.Join(dir, "wotrack.db")

	c.Storage.Backend = config.BackendSQLite
	s, err := openStore(ctx, c, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &db.Store{}, s)
	require.NoError(t, s.Close())

	c.Storage.Backend = config.BackendCSV
	s, err = openStore(ctx, c, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &filestore.Store{}, s)
	require.NoError(t, s.Close())

	c.Storage.Backend = config.BackendJSON
	c.Remote.Enabled = true
	c.Remote.Repo = "shop/floor"
	c.Remote.Token = "ghp_test"
	s, err = openStore(ctx, c, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &mirror.Store{}, s)
	require.NoError(t, s.Close())
}

func TestSetupSkippedForConfigCommands(t *testing.T) {
	assert.True(t, needsNoSetup(configInitCmd))
	assert.True(t, needsNoSetup(versionCmd))
	assert.False(t, needsNoSetup(startCmd))
	assert.False(t, needsNoSetup(orderAddCmd))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "****", maskSecret("abc"))
	assert.Equal(t, "****1234", maskSecret("ghp_abcdef1234"))
}

func TestAddAndStartThroughRootCommand(t *testing.T) {
	for _, env := range []string{"WOTRACK_STORAGE", "WOTRACK_GITHUB_REPO", "GITHUB_TOKEN"} {
		t.Setenv(env, "")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"storage:\n  backend: csv\n  dir: "+dir+"\nlogging:\n  level: error\n"), 0600))

	run := func(args ...string) {
		rootCmd.SetArgs(append([]string{"--config", path}, args...))
		require.NoError(t, rootCmd.Execute())
	}
	run("order", "add", "#1", "Caderno", "x2")
	run("start", "1", "2")

	local, err := filestore.OpenCSV(dir, zap.NewNop())
	require.NoError(t, err)
	defer local.Close()

	ctx := context.Background()
	order, err := local.GetWorkOrder(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, "Caderno", order.Product)
	assert.Equal(t, 2, order.Quantity)
	assert.Equal(t, config.DefaultProcesses, order.Processes)

	timer, err := local.LoadTimer(ctx, tracker.Key{WorkOrderID: "1", Process: config.DefaultProcesses[1]})
	require.NoError(t, err)
	require.NotNil(t, timer)
	assert.Equal(t, models.TimerRunning, timer.Status)
}

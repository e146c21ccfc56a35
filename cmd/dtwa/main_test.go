package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/dtwa/internal/config"
	"github.com/san-kum/dtwa/internal/storage"
	"github.com/san-kum/dtwa/internal/timegrid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	root := newRootCmd()
	cmd, rest, err := root.Find(append([]string{"run"}, args...))
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags(rest))
	return cmd
}

func TestResolveConfigDefaults(t *testing.T) {
	cfg, err := resolveConfig(runCommand(t))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)
}

func TestResolveConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	yaml := "model:\n  sites: 5\nrun:\n  trajectories: 40\n  time: [0, 1, 2]\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := resolveConfig(runCommand(t, "--config", path, "--trajectories", "12"))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Model.Sites)
	assert.Equal(t, 12, cfg.Run.Trajectories)
	assert.Equal(t, timegrid.Explicit{0, 1, 2}, cfg.Run.Time.Spec)
}

func TestResolveConfigPreset(t *testing.T) {
	cfg, err := resolveConfig(runCommand(t, "--preset", "ising", "--range", "0,1,11"))
	require.NoError(t, err)
	assert.Equal(t, config.Vec{Z: 1}, cfg.Model.J)
	assert.Equal(t, timegrid.Range{Start: 0, End: 1, Steps: 11}, cfg.Run.Time.Spec)

	// the preset table itself is not modified
	assert.NotEqual(t, timegrid.Range{Start: 0, End: 1, Steps: 11}, config.Presets["ising"].Run.Time.Spec)

	_, err = resolveConfig(runCommand(t, "--preset", "nope"))
	assert.Error(t, err)
}

func TestResolveConfigBadTimes(t *testing.T) {
	_, err := resolveConfig(runCommand(t, "--times", "0,x"))
	assert.ErrorIs(t, err, timegrid.ErrMalformed)
	_, err = resolveConfig(runCommand(t, "--range", "0,1"))
	assert.ErrorIs(t, err, timegrid.ErrMalformed)
}

func TestRankWithoutCoordinator(t *testing.T) {
	runCommand(t, "--rank", "1", "--size", "2")
	_, err := joinGroup(config.DefaultConfig())
	assert.Error(t, err)
}

func TestRunAndStore(t *testing.T) {
	dir := t.TempDir()
	root := newRootCmd()
	root.SetArgs([]string{"run", "--data", dir, "--sites", "2", "--trajectories", "4",
		"--workers", "2", "--range", "0,0.75,4", "--metrics-file", filepath.Join(dir, "dtwa.prom")})
	require.NoError(t, root.Execute())

	runs, err := storage.New(dir).List()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 4, runs[0].Trajectories)
	assert.Equal(t, 2, runs[0].Ranks)

	data, err := storage.New(dir).LoadDataset(runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.25, 0.5}, data.Times)
	assert.InDelta(t, 1.0, data.SX[0], 1e-12)

	_, err = os.Stat(filepath.Join(dir, "dtwa.prom"))
	assert.NoError(t, err)

	out := filepath.Join(dir, "run.json")
	root = newRootCmd()
	root.SetArgs([]string{"export-json", "--data", dir, runs[0].ID, "-o", out})
	require.NoError(t, root.Execute())
	_, err = os.Stat(out)
	assert.NoError(t, err)
}

func TestRunConfigErrorStoresNothing(t *testing.T) {
	dir := t.TempDir()
	root := newRootCmd()
	root.SetArgs([]string{"run", "--data", dir, "--sites", "2", "--trajectories", "0", "--workers", "3"})
	assert.Error(t, root.Execute())

	runs, err := storage.New(dir).List()
	require.NoError(t, err)
	assert.Empty(t, runs)
}

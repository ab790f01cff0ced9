package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/opsync/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func Test_Load_Returns_Defaults_When_No_Files_Exist(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, Env: map[string]string{}})
	require.NoError(t, err)

	assert.Equal(t, config.DefaultPageSize, cfg.PageSize)
	assert.Equal(t, "file", cfg.StateBackend)
	assert.Equal(t, filepath.Join(dir, ".opsync"), cfg.StateDirAbs)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout.Std())
	assert.Equal(t, config.Sources{}, cfg.Sources)
}

// Contract: defaults < global < project < CLI overrides.
func Test_Load_Applies_Precedence_When_All_Layers_Are_Set(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	xdg := t.TempDir()

	writeFile(t, filepath.Join(xdg, "opsync", "config.json"), `{
		"graph_url": "https://global.example/graph",
		"inventory_url": "https://global.example/api",
		"page_size": 50,
	}`)
	writeFile(t, filepath.Join(dir, ".opsync.json"), `{
		// project wins over global
		"page_size": 10,
		"board_columns": ["todo", "doing", "done"],
		"request_timeout": "3s",
	}`)

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: dir,
		Env:             map[string]string{"XDG_CONFIG_HOME": xdg},
		Overrides:       config.Overrides{GraphURL: "http://cli/graph"},
	})
	require.NoError(t, err)

	assert.Equal(t, "http://cli/graph", cfg.GraphURL)
	assert.Equal(t, "https://global.example/api", cfg.InventoryURL)
	assert.Equal(t, 10, cfg.PageSize)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout.Std())

	if diff := cmp.Diff([]string{"todo", "doing", "done"}, cfg.BoardColumns); diff != "" {
		t.Fatalf("board columns (-want +got):\n%s", diff)
	}

	assert.Equal(t, filepath.Join(xdg, "opsync", "config.json"), cfg.Sources.Global)
	assert.Equal(t, filepath.Join(dir, ".opsync.json"), cfg.Sources.Project)
}

func Test_Load_Uses_Explicit_File_When_Config_Path_Given(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".opsync.json"), `{"page_size": 10}`)
	writeFile(t, filepath.Join(dir, "ci.json"), `{"state_backend": "memory"}`)

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, ConfigPath: "ci.json"})
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StateBackend)
	assert.Equal(t, config.DefaultPageSize, cfg.PageSize, "project file is replaced by the explicit one")

	_, err = config.Load(config.LoadInput{WorkDirOverride: dir, ConfigPath: "missing.json"})
	require.ErrorIs(t, err, config.ErrFileNotFound)
}

func Test_Load_Fails_When_Values_Are_Out_Of_Range(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"page size", `{"page_size": 501}`, config.ErrPageSize},
		{"backend", `{"state_backend": "redis"}`, config.ErrBackend},
		{"log level", `{"log_level": "loud"}`, config.ErrLogLevel},
		{"empty state dir", `{"state_dir": ""}`, config.ErrStateDirEmpty},
		{"unknown key", `{"ticket_dir": "x"}`, config.ErrInvalid},
		{"bad duration", `{"request_timeout": "soon"}`, config.ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, ".opsync.json"), tt.content)

			_, err := config.Load(config.LoadInput{WorkDirOverride: dir})
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func Test_ParseLevel_Accepts_Warning_Alias(t *testing.T) {
	t.Parallel()

	lvl, err := config.ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, "WARN", lvl.String())
}

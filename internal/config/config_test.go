package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":3001", cfg.Server.Addr)
	assert.Equal(t, ".file-backups", cfg.Workspace.BackupDir)
	assert.Equal(t, 50, cfg.Workspace.MaxBulkFiles)
	assert.Equal(t, 10, cfg.Workspace.BackupRetention)
	assert.Equal(t, "AGENTYARD_", cfg.Executor.EnvPrefix)
	assert.Contains(t, cfg.Executor.EnvAllow, "PATH")
}

func TestLoadOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(t.TempDir(), "agentyard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":4000"
workspace:
  root: `+root+`
  backup_retention: 3
executor:
  default_timeout: "45s"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":4000", cfg.Server.Addr)
	assert.Equal(t, root, cfg.Workspace.Root)
	assert.Equal(t, 3, cfg.Workspace.BackupRetention)
	assert.Equal(t, "45s", cfg.Executor.DefaultTimeout)
	// Untouched sections keep their defaults.
	assert.Equal(t, ".file-backups", cfg.Workspace.BackupDir)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("executor:\n  default_timeout: \"soon\"\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestBackupPathRelative(t *testing.T) {
	cfg := Default()
	cfg.Workspace.Root = "/work"
	cfg.Workspace.BackupDir = ".file-backups"
	assert.Equal(t, "/work/.file-backups", cfg.BackupPath())
}

func TestParseByteSize(t *testing.T) {
	cases := map[string]int64{
		"10MiB": 10 << 20,
		"1MB":   1000 * 1000,
		"512":   512,
		"2KiB":  2048,
		"1GB":   1000 * 1000 * 1000,
		"100B":  100,
	}
	for in, want := range cases {
		got, err := ParseByteSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "abc", "-5MB", "10XB"} {
		_, err := ParseByteSize(bad)
		assert.Error(t, err, bad)
	}
}

package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigDir_NonEmpty(t *testing.T) {
	dir := DefaultConfigDir()
	assert.NotEmpty(t, dir)
	assert.Contains(t, dir, appName)
}

func TestDefaultDataDir_NonEmpty(t *testing.T) {
	dir := DefaultDataDir()
	assert.NotEmpty(t, dir)
	assert.Contains(t, dir, appName)
}

func TestDefaultJournalPath(t *testing.T) {
	assert.Equal(t, filepath.Join(DefaultDataDir(), "journal.db"), DefaultJournalPath())
}

func TestDefaultConfigDir_MacOS(t *testing.T) {
	if runtime.GOOS != platformDarwin {
		t.Skip("macOS-only test")
	}

	assert.Contains(t, DefaultConfigDir(), "Library/Application Support")
}

func TestLinuxConfigDir_XDGOverride(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("Linux-only test")
	}

	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, filepath.Join("/custom/config", appName), DefaultConfigDir())
}

func TestLinuxDataDir_XDGOverride(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("Linux-only test")
	}

	t.Setenv("XDG_DATA_HOME", "/custom/data")
	assert.Equal(t, filepath.Join("/custom/data", appName), DefaultDataDir())
}

func TestDefaultConfigPath_FallsBackToConfigDir(t *testing.T) {
	t.Chdir(t.TempDir())

	if runtime.GOOS == platformLinux {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	}

	assert.Equal(t, filepath.Join(DefaultConfigDir(), configFileName), DefaultConfigPath())
}

func TestDefaultConfigPath_PrefersLocalFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(localConfigFileName, []byte(""), 0o600))

	got := DefaultConfigPath()
	assert.Equal(t, localConfigFileName, filepath.Base(got))
	assert.True(t, filepath.IsAbs(got))
}

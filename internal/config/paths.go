package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "hotdeploy"

// Config file names. The local name is looked up in the working directory
// first, matching the habit of keeping the watch configuration next to the
// project it deploys.
const (
	localConfigFileName = "hotdeploy.toml"
	configFileName      = "config.toml"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/hotdeploy).
// On macOS, uses ~/Library/Application Support/hotdeploy.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}

		return filepath.Join(home, ".config", appName)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for the journal
// database and the PID file.
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/hotdeploy).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}

		return filepath.Join(home, ".local", "share", appName)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

// DefaultConfigPath returns ./hotdeploy.toml when it exists, otherwise the
// config.toml inside DefaultConfigDir. Used when neither HOTDEPLOY_CONFIG
// nor --config is given.
func DefaultConfigPath() string {
	if _, err := os.Stat(localConfigFileName); err == nil {
		abs, absErr := filepath.Abs(localConfigFileName)
		if absErr == nil {
			return abs
		}
	}

	dir := DefaultConfigDir()
	if dir == "" {
		return localConfigFileName
	}

	return filepath.Join(dir, configFileName)
}

// DefaultJournalPath returns the journal database location inside the data
// directory.
func DefaultJournalPath() string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, "journal.db")
}

// exists reports whether path can be stat'ed. Permission errors count as
// existing so that the subsequent open reports them.
func exists(path string) bool {
	_, err := os.Stat(path)

	return err == nil || !errors.Is(err, os.ErrNotExist)
}

package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig  = "HOTDEPLOY_CONFIG"
	EnvJournal = "HOTDEPLOY_JOURNAL"
)

// EnvOverrides holds values derived from environment variables. They sit
// between the defaults and the CLI flags: --config beats HOTDEPLOY_CONFIG.
type EnvOverrides struct {
	ConfigPath  string // HOTDEPLOY_CONFIG: config file path
	JournalPath string // HOTDEPLOY_JOURNAL: journal database path
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		JournalPath: os.Getenv(EnvJournal),
	}
}

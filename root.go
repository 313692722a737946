package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tonimelisma/hotdeploy/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// rootOptions holds the process-level flags. Instance flags are not stored
// here: they are read back from the flag set so that only the ones the user
// actually set become overrides.
type rootOptions struct {
	configPath  string
	journalPath string
	noJournal   bool
	metricsAddr string
	pidFile     string
	updateURL   string
}

// instanceFlag describes one command-line flag that overrides a
// configuration key of the same name.
type instanceFlag struct {
	key   string
	short string
	usage string
}

// instanceFlags lists every configuration key reachable from the command
// line, in help order.
var instanceFlags = []instanceFlag{
	{config.KeySource, "s", "source folder to watch"},
	{config.KeyJBossHome, "j", "server home (e.g. /opt/jboss/standalone)"},
	{config.KeyPackagePrefix, "p", "deployed package prefix (e.g. shop-web-1.0.0.war)"},
	{config.KeyLogLevel, "l", "log level (trace, debug, info, warn, error, off, all)"},
	{config.KeyDestSub, "z", "relative path inside the deployed package"},
	{config.KeyRecursive, "r", "watch subfolders of the source folder (true/false)"},
	{config.KeyFilter, "f", "regular expression the source path of a file must match"},
	{config.KeyFixedTarget, "w", "copy to this directory instead of a discovered package"},
	{config.KeyWatchFrom, "", "start watching in this directory inside the source folder"},
	{config.KeyName, "n", "instance name used in logs"},
	{config.KeyMaxRetries, "m", "retries after a failed copy or delete"},
	{config.KeyRetryDelay, "d", "milliseconds between retries"},
	{config.KeyDeployMode, "", "target selection: auto, fixed or discover"},
	{config.KeyReconcile, "", "cron schedule for a full source/target comparison"},
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "hotdeploy",
		Short: "Mirror source changes into deployed packages",
		Long: "Watches source folders and copies every change into the matching " +
			"folder of an exploded deployment, one independent instance per " +
			"configured source.",
		Version: version,
		Args:    cobra.NoArgs,
		// Silence Cobra's default error/usage printing, main reports errors.
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeploy(cmd, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file path (default ./hotdeploy.toml)")
	pf.StringVar(&opts.journalPath, "journal", "", "journal database path")
	pf.BoolVar(&opts.noJournal, "no-journal", false, "do not record outcomes in the journal")

	for _, f := range instanceFlags {
		pf.StringP(f.key, f.short, "", f.usage)
	}

	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9464)")
	cmd.Flags().StringVar(&opts.pidFile, "pid-file", "", "write the process ID here and refuse to start twice")
	cmd.Flags().StringVar(&opts.updateURL, "update-url", "", "version feed to check at startup")

	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// cliOverrides collects the instance flags the user explicitly set. A flag
// left at its zero value is absent, so config sections still apply.
func cliOverrides(flags *pflag.FlagSet) (config.CLIOverrides, error) {
	cli := make(config.CLIOverrides)

	for _, f := range instanceFlags {
		if !flags.Changed(f.key) {
			continue
		}

		v, err := flags.GetString(f.key)
		if err != nil {
			return nil, fmt.Errorf("reading --%s: %w", f.key, err)
		}

		cli[f.key] = v
	}

	return cli, nil
}

// loadStore reads the config file from the override chain. An explicit path
// (flag or environment) must exist; the default location may be missing.
func loadStore(opts *rootOptions) (*config.Store, string, error) {
	env := config.ReadEnvOverrides()
	path := config.ResolveConfigPath(env, opts.configPath)

	if opts.configPath != "" || env.ConfigPath != "" {
		store, err := config.LoadStore(path)
		if err != nil {
			return nil, path, fmt.Errorf("loading config: %w", err)
		}

		return store, path, nil
	}

	store, err := config.LoadStoreOrEmpty(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}

	return store, path, nil
}

// resolveJournalPath applies the override chain for the journal database:
// CLI > environment > default. Empty means the journal is disabled.
func resolveJournalPath(opts *rootOptions) string {
	if opts.noJournal {
		return ""
	}

	if opts.journalPath != "" {
		return opts.journalPath
	}

	if env := config.ReadEnvOverrides(); env.JournalPath != "" {
		return env.JournalPath
	}

	return config.DefaultJournalPath()
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

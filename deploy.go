package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/hotdeploy/internal/config"
	"github.com/tonimelisma/hotdeploy/internal/journal"
	"github.com/tonimelisma/hotdeploy/internal/logging"
	"github.com/tonimelisma/hotdeploy/internal/metrics"
	"github.com/tonimelisma/hotdeploy/internal/mirror"
	"github.com/tonimelisma/hotdeploy/internal/supervisor"
	"github.com/tonimelisma/hotdeploy/internal/updatecheck"
)

// errNoInstances is returned when resolution leaves nothing to run.
var errNoInstances = errors.New("no instance configured (set --source or add a section to the config file)")

// runDeploy is the root command: resolve every instance, start one engine
// per instance under a supervisor and block until a signal arrives or no
// instance is left.
func runDeploy(cmd *cobra.Command, opts *rootOptions) error {
	logger, levels := logging.New(cmd.ErrOrStderr(), slog.LevelInfo)
	runCtx, stop := context.WithCancel(cmd.Context())
	defer stop()

	ctx := shutdownContext(runCtx, logger)

	logger.Info("hotdeploy starting", slog.String("version", version))

	if opts.updateURL != "" {
		if err := checkForUpdate(ctx, opts.updateURL, logger); err != nil {
			return err
		}
	}

	instances, err := resolveInstances(cmd, opts, levels, logger)
	if err != nil {
		return err
	}

	if opts.pidFile != "" {
		cleanup, pidErr := writePIDFile(opts.pidFile)
		if pidErr != nil {
			return pidErr
		}
		defer cleanup()
	}

	collector := metrics.NewCollector(nil)
	recorders := mirror.Recorders{collector}

	if j := openJournal(ctx, opts, len(instances), logger); j != nil {
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Warn("closing journal", slog.String("error", closeErr.Error()))
			}
		}()

		recorders = append(recorders, j)
	}

	units := make([]supervisor.Unit, 0, len(instances))

	for _, inst := range instances {
		engine := mirror.NewEngine(&mirror.EngineConfig{
			Instance: inst,
			Recorder: recorders,
			Logger:   logger,
		})

		units = append(units, supervisor.Unit{Name: inst.Name, Run: engine.Run})
	}

	if opts.metricsAddr != "" {
		go func() {
			if serveErr := collector.Serve(ctx, opts.metricsAddr, logger); serveErr != nil {
				logger.Error("metrics server stopped", slog.String("error", serveErr.Error()))
			}
		}()
	}

	sup := supervisor.New(units, logger)
	sup.OnChange = collector.SetAlive

	err = sup.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutdown complete", slog.String("reason", context.Cause(ctx).Error()))
		return nil
	}

	return err
}

// resolveInstances loads the config file and resolves every instance. A
// section with configuration errors is logged and skipped; only an empty
// result is fatal.
func resolveInstances(
	cmd *cobra.Command, opts *rootOptions, levels config.LevelSetter, logger *slog.Logger,
) ([]*config.Instance, error) {
	store, path, err := loadStore(opts)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration file", slog.String("path", path))

	cli, err := cliOverrides(cmd.Flags())
	if err != nil {
		return nil, err
	}

	instances, errs := config.NewResolver(store, cli, levels, logger).ResolveAll()

	for _, e := range errs {
		logger.Error("skipping instance", slog.String("error", e.Error()))
	}

	if len(instances) == 0 {
		if len(errs) > 0 {
			return nil, fmt.Errorf("no valid instance: %w", errors.Join(errs...))
		}

		return nil, errNoInstances
	}

	logger.Info("instances configured", slog.Int("count", len(instances)), slog.Int("skipped", len(errs)))

	return instances, nil
}

// openJournal opens the outcome journal and starts a run. The journal is an
// audit aid, so failing to open it only costs the history.
func openJournal(ctx context.Context, opts *rootOptions, instances int, logger *slog.Logger) *journal.Journal {
	path := resolveJournalPath(opts)
	if path == "" {
		return nil
	}

	j, err := journal.Open(ctx, path, logger)
	if err != nil {
		logger.Warn("journal disabled", slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}

	if _, err := j.BeginRun(ctx, instances); err != nil {
		logger.Warn("journal disabled", slog.String("path", path), slog.String("error", err.Error()))
		j.Close()

		return nil
	}

	return j
}

// checkForUpdate consults the version feed. Only a mandatory update stops
// the start; an unreachable feed is a warning.
func checkForUpdate(ctx context.Context, url string, logger *slog.Logger) error {
	_, err := updatecheck.New(url, version, nil, logger).Check(ctx)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, updatecheck.ErrMandatoryUpdate):
		return err
	default:
		logger.Warn("version check failed", slog.String("error", err.Error()))
		return nil
	}
}

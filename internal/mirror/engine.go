package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/tonimelisma/hotdeploy/internal/config"
	"github.com/tonimelisma/hotdeploy/internal/logging"
)

// State is the lifecycle phase of an Engine.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// EngineConfig holds the collaborators of one Engine.
type EngineConfig struct {
	Instance *config.Instance
	Resolver *TargetResolver // nil creates a default resolver
	Recorder Recorder        // optional
	Logger   *slog.Logger
}

// Engine mirrors one instance: it watches the source tree and hands every
// change to its Processor. All work happens on the goroutine calling Run.
type Engine struct {
	inst      *config.Instance
	targets   *TargetCache
	processor *Processor
	recorder  Recorder
	logger    *slog.Logger

	// watched is the registration set: every directory currently added to
	// the watcher. Only the Run goroutine touches it.
	watched map[string]struct{}
	state   atomic.Int32

	// newWatcher opens the watch facility. Tests inject a fake.
	newWatcher func() (FsWatcher, error)
}

// NewEngine creates an Engine for cfg.Instance.
func NewEngine(cfg *EngineConfig) *Engine {
	logger := cfg.Logger.With(slog.String("instance", cfg.Instance.Name))

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = NewTargetResolver(logger)
	}

	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	targets := NewTargetCache(cfg.Instance.Target, resolver)

	return &Engine{
		inst:       cfg.Instance,
		targets:    targets,
		processor:  NewProcessor(cfg.Instance, targets, logger),
		recorder:   recorder,
		logger:     logger,
		watched:    make(map[string]struct{}),
		newWatcher: newFsnotifyWatcher,
	}
}

// State returns the current lifecycle phase. Safe from any goroutine.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Run watches until every registered directory is gone (returns nil), the
// context is canceled (returns nil), or the watch breaks (returns an error
// wrapping ErrWatchLoop).
func (e *Engine) Run(ctx context.Context) error {
	e.setState(StateStarting)
	defer e.setState(StateStopped)

	watcher, err := e.newWatcher()
	if err != nil {
		return fmt.Errorf("%w: creating watcher: %w", ErrWatchLoop, err)
	}

	defer func() {
		if closeErr := watcher.Close(); closeErr != nil {
			e.logger.Debug("closing watcher", slog.String("error", closeErr.Error()))
		}
	}()

	if err := e.register(watcher, e.inst.WatchFrom); err != nil {
		return fmt.Errorf("%w: watching %s: %w", ErrWatchLoop, e.inst.WatchFrom, err)
	}

	e.logger.Info("watching",
		slog.String("root", e.inst.WatchFrom),
		slog.Bool("recursive", e.inst.Recursive),
		slog.Int("directories", len(e.watched)),
	)

	ticks, stop, err := e.startSchedule()
	if err != nil {
		return err
	}
	defer stop()

	e.setState(StateRunning)

	return e.watchLoop(ctx, watcher, ticks)
}

// watchLoop is the single suspension point of the engine: events, watcher
// errors, reconcile ticks and cancellation all arrive here.
func (e *Engine) watchLoop(ctx context.Context, watcher FsWatcher, ticks <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			e.setState(StateDraining)
			e.logger.Debug("watch canceled")

			return nil

		case fsEvent, ok := <-watcher.Events():
			if !ok {
				return fmt.Errorf("%w: event channel closed", ErrWatchLoop)
			}

			e.handleFsEvent(ctx, watcher, fsEvent)

			if len(e.watched) == 0 {
				e.setState(StateDraining)
				e.logger.Info("no watched directories left, stopping")

				return nil
			}

		case watchErr, ok := <-watcher.Errors():
			if !ok {
				return fmt.Errorf("%w: error channel closed", ErrWatchLoop)
			}

			if errors.Is(watchErr, fsnotify.ErrEventOverflow) {
				e.logger.Warn("filesystem notifications were dropped, changes may be missing from the target")

				if or, ok := e.recorder.(OverflowRecorder); ok {
					or.RecordOverflow(e.inst.Name)
				}

				continue
			}

			return fmt.Errorf("%w: %w", ErrWatchLoop, watchErr)

		case <-ticks:
			e.reconcile(ctx)
		}
	}
}

// handleFsEvent turns one fsnotify event into a notification, processes it
// and re-arms the registration set.
func (e *Engine) handleFsEvent(ctx context.Context, watcher FsWatcher, fsEvent fsnotify.Event) {
	kind, ok := notificationKind(fsEvent)
	if !ok {
		return
	}

	path := filepath.Clean(fsEvent.Name)
	n := Notification{Kind: kind, Path: path, Dir: filepath.Dir(path)}

	e.logger.Debug("notification", slog.String("kind", kind.String()), slog.String("path", path))

	// Register a new subtree before processing so files created inside it
	// right away are not missed.
	if kind == KindCreated && e.inst.Recursive {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := e.register(watcher, path); err != nil {
				e.logger.Warn("failed to watch new directory",
					slog.String("path", path), slog.String("error", err.Error()))
			}
		}
	}

	// The watch root disappearing must not wipe its mirror in the target.
	if path == e.inst.WatchFrom && kind == KindDeleted {
		e.logger.Warn("watch root removed", slog.String("path", path))
	} else {
		e.dispatch(ctx, n)
	}

	if kind == KindDeleted {
		e.rearm(watcher, path)
	}
}

func (e *Engine) dispatch(ctx context.Context, n Notification) {
	out := e.processor.Process(n)

	if out.Result == ResultFailed {
		e.logger.Error("giving up on change",
			slog.String("kind", n.Kind.String()),
			slog.String("path", n.Path),
			slog.Int("attempts", out.Attempts),
			slog.String("error", out.Err.Error()),
		)
	}

	e.recorder.Record(ctx, out)
}

// register adds root, and every directory below it when recursive, to the
// watcher. Only a failure on root itself is returned; unreadable
// subdirectories are logged and skipped.
func (e *Engine) register(watcher FsWatcher, root string) error {
	if err := e.addWatch(watcher, root); err != nil {
		return err
	}

	if !e.inst.Recursive {
		return nil
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			e.logger.Debug("walk failed", slog.String("path", path), slog.String("error", walkErr.Error()))

			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}

			return nil
		}

		if !d.IsDir() || path == root {
			return nil
		}

		if err := e.addWatch(watcher, path); err != nil {
			e.logger.Warn("failed to watch directory",
				slog.String("path", path), slog.String("error", err.Error()))
		}

		return nil
	})
}

func (e *Engine) addWatch(watcher FsWatcher, dir string) error {
	dir = filepath.Clean(dir)
	if _, ok := e.watched[dir]; ok {
		return nil
	}

	if err := watcher.Add(dir); err != nil {
		return err
	}

	e.watched[dir] = struct{}{}
	e.logger.Log(context.Background(), logging.LevelTrace, "registered directory", slog.String("dir", dir))

	return nil
}

// rearm drops every registered directory at or below path that no longer
// exists. fsnotify keeps working watches armed by itself, so a directory
// that still exists needs nothing.
func (e *Engine) rearm(watcher FsWatcher, path string) {
	for dir := range e.watched {
		if !isWithin(dir, path) {
			continue
		}

		if _, err := os.Stat(dir); err == nil {
			continue
		}

		delete(e.watched, dir)

		if err := watcher.Remove(dir); err != nil {
			e.logger.Log(context.Background(), logging.LevelTrace, "watch already gone",
				slog.String("dir", dir), slog.String("error", err.Error()))
		}

		e.logger.Debug("directory no longer watched", slog.String("dir", dir))
	}
}

// startSchedule starts the reconcile cron schedule, if one is configured.
// Ticks are coalesced: a pass that is still waiting absorbs later ticks.
func (e *Engine) startSchedule() (<-chan struct{}, func(), error) {
	if e.inst.Reconcile == "" {
		return nil, func() {}, nil
	}

	ticks := make(chan struct{}, 1)
	sched := cron.New()

	_, err := sched.AddFunc(e.inst.Reconcile, func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return nil, nil, fmt.Errorf("mirror: reconcile schedule %q: %w", e.inst.Reconcile, err)
	}

	sched.Start()
	e.logger.Debug("reconcile scheduled", slog.String("schedule", e.inst.Reconcile))

	return ticks, func() { <-sched.Stop().Done() }, nil
}

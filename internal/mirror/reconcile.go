package mirror

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	gosync "sync"

	"golang.org/x/sync/errgroup"
)

// reconcileWorkers bounds the number of concurrent copies in one pass.
const reconcileWorkers = 4

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Scanned int
	Copied  int
	Failed  int
}

// reconcile runs one pass and logs its report. Errors are logged, never
// returned: a failed pass must not stop the engine.
func (e *Engine) reconcile(ctx context.Context) {
	e.logger.Debug("reconcile pass starting")

	report, err := e.Reconcile(ctx)
	if err != nil {
		e.logger.Warn("reconcile pass failed", slog.String("error", err.Error()))
		return
	}

	e.logger.Info("reconcile pass complete",
		slog.Int("scanned", report.Scanned),
		slog.Int("copied", report.Copied),
		slog.Int("failed", report.Failed),
	)
}

// Reconcile walks the source tree below WatchFrom and copies every file
// whose mirrored copy is missing, has a different size, or is older than
// the source. It closes gaps left by dropped notifications. Deletions are
// not replayed. The filter applies as it does to notifications.
func (e *Engine) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	root, err := e.targets.Get()
	if err != nil {
		return report, err
	}

	if e.inst.DestSub != "" {
		root = filepath.Join(root, e.inst.DestSub)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileWorkers)

	var mu gosync.Mutex

	walkErr := filepath.WalkDir(e.inst.WatchFrom, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			e.logger.Debug("reconcile: walk failed", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}

		if gctx.Err() != nil {
			return gctx.Err()
		}

		if d.IsDir() {
			if path != e.inst.WatchFrom && !e.inst.Recursive {
				return fs.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() || !e.processor.matchesFilter(path) {
			return nil
		}

		report.Scanned++

		target := Reflect(path, e.inst.Source, root)
		if !needsCopy(path, target) {
			return nil
		}

		g.Go(func() error {
			copied, copyErr := e.processor.ops.CopyFile(path, target)

			out := Outcome{
				Instance: e.inst.Name,
				Kind:     KindModified,
				Path:     path,
				Target:   target,
				Result:   ResultApplied,
				Attempts: 1,
				At:       e.processor.nowFunc(),
			}

			mu.Lock()
			defer mu.Unlock()

			switch {
			case copyErr != nil:
				report.Failed++
				out.Result = ResultFailed
				out.Err = copyErr

				e.logger.Warn("reconcile: copy failed",
					slog.String("path", path), slog.String("error", copyErr.Error()))
			case !copied:
				out.Result = ResultSkipped
			default:
				report.Copied++

				e.logger.Info("reconcile: copied", slog.String("path", path), slog.String("target", target))
			}

			e.recorder.Record(gctx, out)

			return nil
		})

		return nil
	})

	waitErr := g.Wait()

	if walkErr != nil {
		return report, walkErr
	}

	return report, waitErr
}

// needsCopy reports whether target is missing or stale relative to source.
func needsCopy(source, target string) bool {
	src, err := os.Stat(source)
	if err != nil {
		return false
	}

	dst, err := os.Stat(target)
	if err != nil {
		return true
	}

	return dst.Size() != src.Size() || dst.ModTime().Before(src.ModTime())
}

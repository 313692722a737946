package mirror

import (
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/hotdeploy/internal/config"
)

// TargetSource yields the current target root. *TargetCache implements it.
type TargetSource interface {
	Get() (string, error)
}

// Processor applies one notification to the target tree, retrying the
// whole action on failure. It is used by a single engine goroutine.
type Processor struct {
	inst    *config.Instance
	targets TargetSource
	ops     fileOps
	logger  *slog.Logger

	// sleepFunc waits between attempts. The wait is deliberately not tied to
	// a context: an action in flight always finishes its retry budget.
	sleepFunc func(time.Duration)
	nowFunc   func() time.Time
}

// NewProcessor creates a Processor acting on the local filesystem.
func NewProcessor(inst *config.Instance, targets TargetSource, logger *slog.Logger) *Processor {
	return &Processor{
		inst:      inst,
		targets:   targets,
		ops:       osFileOps{},
		logger:    logger,
		sleepFunc: time.Sleep,
		nowFunc:   time.Now,
	}
}

// Process applies n, making at most MaxRetries+1 attempts. Target
// resolution is part of every attempt, so a vanished deployment directory
// is rediscovered on retry.
func (p *Processor) Process(n Notification) Outcome {
	out := Outcome{
		Instance: p.inst.Name,
		Kind:     n.Kind,
		Path:     n.Path,
	}

	for attempt := 1; ; attempt++ {
		out.Attempts = attempt

		target, result, err := p.attempt(n)
		out.Target = target

		if err == nil {
			out.Result = result
			out.At = p.nowFunc()

			return out
		}

		p.logger.Warn("action failed",
			slog.String("kind", n.Kind.String()),
			slog.String("path", n.Path),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		if attempt > p.inst.MaxRetries {
			out.Result = ResultFailed
			out.Err = err
			out.At = p.nowFunc()

			return out
		}

		p.sleepFunc(p.inst.RetryDelay)
	}
}

// attempt runs the action table once.
func (p *Processor) attempt(n Notification) (string, Result, error) {
	root, err := p.targets.Get()
	if err != nil {
		return "", ResultFailed, err
	}

	if p.inst.DestSub != "" {
		root = filepath.Join(root, p.inst.DestSub)
	}

	target := Reflect(n.Path, p.inst.Source, root)
	dir := isDirectory(target, n.Path)

	if !dir && !p.matchesFilter(n.Path) {
		p.logger.Debug("filtered out", slog.String("path", n.Path))
		return target, ResultFiltered, nil
	}

	var done bool

	switch {
	case n.Kind == KindDeleted && dir:
		done, err = p.ops.RemoveTree(target)
	case n.Kind == KindDeleted:
		done, err = p.ops.Remove(target)
	case dir && n.Kind == KindCreated:
		done, err = p.ops.CopyTree(n.Path, target)
	case dir:
		return target, ResultSkipped, nil
	default:
		done, err = p.ops.CopyFile(n.Path, target)
	}

	if err != nil {
		return target, ResultFailed, err
	}

	if !done {
		p.logger.Debug("nothing to do, entry absent",
			slog.String("kind", n.Kind.String()), slog.String("path", n.Path))

		return target, ResultSkipped, nil
	}

	p.logger.Info(actionVerb(n.Kind, dir),
		slog.String("path", n.Path),
		slog.String("target", target),
	)

	return target, ResultApplied, nil
}

// matchesFilter reports whether a file passes the instance filter. The
// pattern may match anywhere in the NFC-normalized absolute path.
func (p *Processor) matchesFilter(path string) bool {
	if p.inst.Filter == nil {
		return true
	}

	return p.inst.Filter.MatchString(norm.NFC.String(path))
}

func actionVerb(kind Kind, dir bool) string {
	switch {
	case kind == KindDeleted && dir:
		return "removed directory"
	case kind == KindDeleted:
		return "removed"
	case dir:
		return "copied directory"
	default:
		return "copied"
	}
}

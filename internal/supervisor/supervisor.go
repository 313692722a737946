// Package supervisor runs independent units, one per configured instance,
// and reports when none of them is left.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrNoInstancesAlive is returned by Run once every unit has ended.
var ErrNoInstancesAlive = errors.New("supervisor: no instances alive")

// defaultPollInterval bounds how long the supervisor takes to notice that
// the last unit ended.
const defaultPollInterval = 250 * time.Millisecond

// Unit is one independently running instance.
type Unit struct {
	Name string
	Run  func(ctx context.Context) error
}

// Supervisor starts every unit on its own goroutine and polls liveness.
type Supervisor struct {
	units  []Unit
	logger *slog.Logger

	// OnChange, when set, is called from Run with the number of live units
	// each time it changes.
	OnChange func(alive int)

	pollInterval time.Duration
}

// New creates a Supervisor for units.
func New(units []Unit, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		units:        units,
		logger:       logger,
		pollInterval: defaultPollInterval,
	}
}

// runner wraps one unit with panic recovery and a liveness channel. A panic
// or error in one unit never reaches the others.
type runner struct {
	unit Unit
	done chan struct{}
	err  error
}

func (r *runner) run(ctx context.Context, logger *slog.Logger) {
	logger = logger.With(slog.String("instance", r.unit.Name))

	defer close(r.done)

	defer func() {
		if p := recover(); p != nil {
			r.err = fmt.Errorf("panic in instance %s: %v", r.unit.Name, p)
			logger.Error("instance crashed", slog.String("error", r.err.Error()))
		}
	}()

	logger.Info("instance started")

	r.err = r.unit.Run(ctx)
	if r.err != nil {
		logger.Error("instance stopped", slog.String("error", r.err.Error()))
		return
	}

	logger.Info("instance stopped")
}

func (r *runner) alive() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Run starts all units and blocks. It returns ErrNoInstancesAlive on the
// first poll that finds no live unit, or ctx.Err() after the context is
// canceled and every unit has returned.
func (s *Supervisor) Run(ctx context.Context) error {
	runners := make([]*runner, len(s.units))

	for i, u := range s.units {
		runners[i] = &runner{unit: u, done: make(chan struct{})}
		go runners[i].run(ctx, s.logger)
	}

	s.logger.Info("instances started", slog.Int("count", len(runners)))

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	lastAlive := -1

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down, waiting for instances")

			for _, r := range runners {
				<-r.done
			}

			s.notify(0, &lastAlive)

			return ctx.Err()

		case <-ticker.C:
			alive := 0

			for _, r := range runners {
				if r.alive() {
					alive++
				}
			}

			s.notify(alive, &lastAlive)

			if alive == 0 {
				s.logger.Error("all instances have stopped")
				return ErrNoInstancesAlive
			}
		}
	}
}

func (s *Supervisor) notify(alive int, last *int) {
	if alive == *last {
		return
	}

	*last = alive

	s.logger.Debug("live instances", slog.Int("alive", alive))

	if s.OnChange != nil {
		s.OnChange(alive)
	}
}

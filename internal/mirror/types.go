// Package mirror watches a source tree and mirrors every change into a
// deployment target: files are copied, deletions are replayed, and new
// directories are copied as a whole.
package mirror

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors. Callers test them with errors.Is.
var (
	// ErrDiscovery is returned when the exploded deployment directory of an
	// application server cannot be located.
	ErrDiscovery = errors.New("mirror: deployment target not found")

	// ErrWatchLoop is returned when the filesystem watch breaks in a way the
	// engine cannot recover from. It ends only the owning instance.
	ErrWatchLoop = errors.New("mirror: watch loop failed")
)

// Kind is the type of change a notification reports.
type Kind int

const (
	KindCreated Kind = iota
	KindModified
	KindDeleted
)

func (k Kind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindModified:
		return "modified"
	case KindDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Notification is one change under the watch root. Path is absolute; Dir is
// the registered directory that reported it.
type Notification struct {
	Kind Kind
	Path string
	Dir  string
}

// Result classifies how one notification ended.
type Result int

const (
	// ResultApplied means the target now reflects the change.
	ResultApplied Result = iota
	// ResultSkipped means there was nothing to do: the entry was already
	// absent, or the source vanished before the copy ran.
	ResultSkipped
	// ResultFiltered means the file did not match the instance filter.
	ResultFiltered
	// ResultFailed means every attempt failed.
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultApplied:
		return "applied"
	case ResultSkipped:
		return "skipped"
	case ResultFiltered:
		return "filtered"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the record of one processed notification. Err is set only when
// Result is ResultFailed.
type Outcome struct {
	Instance string
	Kind     Kind
	Path     string
	Target   string
	Result   Result
	Attempts int
	Err      error
	At       time.Time
}

// Recorder receives every outcome an engine produces. Implementations must
// be safe for concurrent use: all instances share one recorder.
type Recorder interface {
	Record(ctx context.Context, o Outcome)
}

// OverflowRecorder is implemented by recorders that also count dropped
// notifications.
type OverflowRecorder interface {
	RecordOverflow(instance string)
}

// Recorders fans one outcome out to several recorders in order.
type Recorders []Recorder

// Record implements Recorder.
func (rs Recorders) Record(ctx context.Context, o Outcome) {
	for _, r := range rs {
		r.Record(ctx, o)
	}
}

// RecordOverflow implements OverflowRecorder for the members that support it.
func (rs Recorders) RecordOverflow(instance string) {
	for _, r := range rs {
		if or, ok := r.(OverflowRecorder); ok {
			or.RecordOverflow(instance)
		}
	}
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Outcome) {}

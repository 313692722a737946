package mirror

import (
	"github.com/fsnotify/fsnotify"
)

// FsWatcher is the subset of *fsnotify.Watcher the engine needs. Tests
// substitute a fake with injectable channels.
type FsWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

// fsnotifyWatcher adapts *fsnotify.Watcher, whose channels are struct
// fields, to FsWatcher.
type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func newFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &fsnotifyWatcher{w: w}, nil
}

func (f *fsnotifyWatcher) Add(name string) error         { return f.w.Add(name) }
func (f *fsnotifyWatcher) Remove(name string) error      { return f.w.Remove(name) }
func (f *fsnotifyWatcher) Close() error                  { return f.w.Close() }
func (f *fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

// notificationKind maps an fsnotify operation to a notification kind. The
// second result is false for events that carry no content change, such as
// a bare chmod.
func notificationKind(ev fsnotify.Event) (Kind, bool) {
	switch {
	case ev.Has(fsnotify.Create):
		return KindCreated, true
	case ev.Has(fsnotify.Write):
		return KindModified, true
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		return KindDeleted, true
	default:
		return 0, false
	}
}

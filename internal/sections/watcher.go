package sections

import (
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"

	"github.com/dshills/cmdpalette/internal/palette"
)

// ErrWatcherClosed is returned when using a closed Watcher.
var ErrWatcherClosed = errors.New("section watcher is closed")

// ApplyFunc turns a parsed file into live palette state.
type ApplyFunc func(f *File) (*Applied, error)

// ReloadEvent reports the outcome of reloading a changed file.
// Err is nil when the new contents were applied.
type ReloadEvent struct {
	Path string
	Err  error
}

// Watcher keeps section files applied and re-applies them when they
// change on disk. A file that fails to load or apply leaves the previous
// good state in place.
type Watcher struct {
	mu sync.Mutex

	fsw   *fsnotify.Watcher
	apply ApplyFunc
	log   logr.Logger
	delay time.Duration

	files  map[string]*Applied
	dirs   map[string]bool
	timers map[string]*time.Timer

	reload   chan string
	reloaded palette.Signal[ReloadEvent]

	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the watcher logger.
func WithWatcherLogger(log logr.Logger) WatcherOption {
	return func(w *Watcher) { w.log = log }
}

// WithDebounce coalesces changes to the same file that arrive within d.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.delay = d
		}
	}
}

// NewWatcher creates a watcher that applies files with apply.
func NewWatcher(apply ApplyFunc, opts ...WatcherOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:     fsw,
		apply:   apply,
		log:     logr.Discard(),
		delay:   100 * time.Millisecond,
		files:   make(map[string]*Applied),
		dirs:    make(map[string]bool),
		timers:  make(map[string]*time.Timer),
		reload:  make(chan string, 16),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.closedWg.Add(1)
	go w.processLoop()
	return w, nil
}

// Add loads and applies path, then watches it for changes. The parent
// directory is watched so editors that replace files atomically are seen.
func (w *Watcher) Add(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}

	f, err := Load(absPath)
	if err != nil {
		return err
	}

	old := w.files[absPath]
	old.Dispose()
	applied, err := w.apply(f)
	if err != nil {
		w.restore(absPath, old)
		return err
	}
	w.files[absPath] = applied

	dir := filepath.Dir(absPath)
	if !w.dirs[dir] {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	return nil
}

// Remove disposes the state applied from path and stops tracking it.
func (w *Watcher) Remove(path string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if applied, ok := w.files[absPath]; ok {
		applied.Dispose()
		delete(w.files, absPath)
	}
	if t, ok := w.timers[absPath]; ok {
		t.Stop()
		delete(w.timers, absPath)
	}
}

// Files returns the tracked file paths, sorted.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// OnReload registers fn to be called after each reload attempt.
// The returned function disconnects fn.
func (w *Watcher) OnReload(fn func(ReloadEvent)) func() {
	return w.reloaded.Connect(fn)
}

// Close stops watching. Applied sections stay in place.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()

	w.closedWg.Wait()
	return w.fsw.Close()
}

func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFSEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error(err, "section watcher error")

		case path := <-w.reload:
			w.reloadFile(path)
		}
	}
}

// handleFSEvent schedules a reload for writes and creates of tracked files.
// Removes and renames are ignored; the replacement file arrives as a create.
func (w *Watcher) handleFSEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}
	path := filepath.Clean(ev.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.files[path]; !ok || w.closed {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.delay)
		return
	}
	w.timers[path] = time.AfterFunc(w.delay, func() {
		select {
		case w.reload <- path:
		case <-w.closeCh:
		}
	})
}

func (w *Watcher) reloadFile(path string) {
	w.mu.Lock()
	delete(w.timers, path)
	old, tracked := w.files[path]
	if !tracked {
		w.mu.Unlock()
		return
	}

	log := w.log.WithValues("path", path)
	err := w.swap(path, old)
	w.mu.Unlock()

	if err != nil {
		log.Error(err, "section file reload failed; keeping previous sections")
	} else {
		log.Info("section file reloaded")
	}
	w.reloaded.Emit(ReloadEvent{Path: path, Err: err})
}

// swap replaces old with the file's current contents. Must hold w.mu.
func (w *Watcher) swap(path string, old *Applied) error {
	f, err := Load(path)
	if err != nil {
		return err
	}

	old.Dispose()
	applied, err := w.apply(f)
	if err != nil {
		w.restore(path, old)
		return err
	}
	w.files[path] = applied
	return nil
}

// restore re-applies the previous good file after a failed apply.
// Must hold w.mu.
func (w *Watcher) restore(path string, old *Applied) {
	if old == nil {
		delete(w.files, path)
		return
	}
	applied, err := w.apply(old.File)
	if err != nil {
		w.log.Error(err, "restoring previous sections failed", "path", path)
		delete(w.files, path)
		return
	}
	w.files[path] = applied
}

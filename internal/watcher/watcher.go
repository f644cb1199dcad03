// Package watcher watches import directories with fsnotify and hands settled JSON Lines files
// to an import callback.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// ErrNotStarted is returned when roots are changed before Start or after Stop.
var ErrNotStarted = errors.New("watcher not started")

// ImportFunc imports one file. It is called from timer goroutines, one call per settled file.
type ImportFunc func(path string)

// Watcher watches import roots and calls an ImportFunc for new or rewritten files.
type Watcher struct {
	mu        sync.Mutex
	roots     []string
	rootPaths map[string][]string // root -> watched directories under it
	pending   map[string]*time.Timer
	imported  map[string]fileStamp // path -> stamp at last import

	extensions []string
	recursive  bool
	onImport   ImportFunc
	debounce   time.Duration
	logger     *zap.Logger

	fsw      *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger for watch events.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must stay unchanged before it is imported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a watcher over roots. Only files whose extension is in extensions are imported
// (all files when empty).
func New(roots, extensions []string, recursive bool, onImport ImportFunc, opts ...Option) *Watcher {
	w := &Watcher{
		roots:      append([]string(nil), roots...),
		rootPaths:  make(map[string][]string),
		pending:    make(map[string]*time.Timer),
		imported:   make(map[string]fileStamp),
		extensions: extensions,
		recursive:  recursive,
		onImport:   onImport,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. Missing roots are created. It returns once the roots are registered;
// events are handled until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.mu.Lock()
	if w.fsw != nil {
		w.mu.Unlock()
		_ = fsw.Close()
		return nil
	}
	w.fsw = fsw
	for i, root := range w.roots {
		abs, err := filepath.Abs(root)
		if err == nil {
			err = w.watchRootLocked(abs)
		}
		if err != nil {
			w.fsw = nil
			w.mu.Unlock()
			_ = fsw.Close()
			return err
		}
		w.roots[i] = abs
	}
	w.logger.Debug("watcher started", zap.Strings("roots", w.roots), zap.Strings("extensions", w.extensions))
	w.mu.Unlock()

	go w.loop(ctx, fsw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			w.cancel(ev.Name)
		}
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if w.recursive {
			w.addSubtree(ev.Name)
		}
		return
	}
	if info.Mode().IsRegular() && matchExtension(ev.Name, w.extensions) {
		w.schedule(ev.Name)
	}
}

// addSubtree watches a directory created under a root and imports the files already in it.
func (w *Watcher) addSubtree(dir string) {
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return
	}
	root := w.rootOfLocked(dir)
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Debug("watcher add failed", zap.String("path", path), zap.Error(err))
			return nil
		}
		if root != "" {
			w.rootPaths[root] = append(w.rootPaths[root], path)
		}
		return nil
	})
	w.mu.Unlock()
	w.scan(dir)
}

func (w *Watcher) rootOfLocked(path string) string {
	for _, root := range w.roots {
		if root == path || inDir(root, path) {
			return root
		}
	}
	return ""
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// schedule (re)arms the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() { w.fire(path) })
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()
	w.importIfChanged(path)
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
	delete(w.imported, path)
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

// importIfChanged calls onImport unless path was already imported with its current mod time and size.
func (w *Watcher) importIfChanged(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	stamp := fileStamp{modTime: info.ModTime(), size: info.Size()}
	w.mu.Lock()
	last, seen := w.imported[path]
	if seen && last.size == stamp.size && last.modTime.Equal(stamp.modTime) {
		w.mu.Unlock()
		return
	}
	w.imported[path] = stamp
	w.mu.Unlock()

	w.logger.Debug("watcher importing file", zap.String("path", path))
	if w.onImport != nil {
		w.onImport(path)
	}
}

// scan imports every matching file under dir.
func (w *Watcher) scan(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && !w.recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && matchExtension(path, w.extensions) {
			w.importIfChanged(path)
		}
		return nil
	})
}

// SyncExisting imports the files already present in every root. Call it after Start.
func (w *Watcher) SyncExisting() {
	for _, root := range w.Directories() {
		w.scan(root)
	}
}

func (w *Watcher) watchRootLocked(root string) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	if !w.recursive {
		if err := w.fsw.Add(root); err != nil {
			return err
		}
		w.rootPaths[root] = []string{root}
		return nil
	}
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return err
	}
	w.rootPaths[root] = paths
	return nil
}

// AddDirectory starts watching root. When syncExisting is true its current files are imported
// in the background. Adding a watched root is a no-op.
func (w *Watcher) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	if w.fsw == nil {
		w.mu.Unlock()
		return ErrNotStarted
	}
	for _, r := range w.roots {
		if r == abs {
			w.mu.Unlock()
			return nil
		}
	}
	if err := w.watchRootLocked(abs); err != nil {
		w.mu.Unlock()
		return err
	}
	w.roots = append(w.roots, abs)
	w.mu.Unlock()

	w.logger.Debug("watcher directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		go w.scan(abs)
	}
	return nil
}

// RemoveDirectory stops watching root. Documents imported from it stay indexed.
func (w *Watcher) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fsw == nil {
		return ErrNotStarted
	}
	for i, r := range w.roots {
		if r != abs {
			continue
		}
		for _, p := range w.rootPaths[abs] {
			_ = w.fsw.Remove(p)
		}
		delete(w.rootPaths, abs)
		w.roots = append(w.roots[:i], w.roots[i+1:]...)
		w.logger.Debug("watcher directory removed", zap.String("path", abs))
		return nil
	}
	return nil
}

// Directories returns the watched roots.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// Stop stops watching and cancels pending imports.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fsw := w.fsw
	w.fsw = nil
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	if fsw != nil {
		_ = fsw.Close()
	}
	w.stopOnce.Do(func() { close(w.done) })
}

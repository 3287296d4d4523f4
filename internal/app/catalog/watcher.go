package catalog

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/openfm/internal/domain/mood"
	"github.com/osa030/openfm/internal/infra/clock"
)

// DefaultDebounce is the quiet period before a change triggers a rescan.
const DefaultDebounce = 500 * time.Millisecond

var watchedExtensions = []string{".mp3", ".wav", ".ogg", ".m4a", ".flac", ".png"}

// Watcher calls onChange when audio files below the library root change.
// Bursts of events collapse into one call after the debounce period.
type Watcher struct {
	fs       *fsnotify.Watcher
	root     string
	clock    clock.Clock
	debounce time.Duration
	onChange func()

	mu    sync.Mutex
	timer clock.Timer
}

// NewWatcher watches root and its mood directories.
func NewWatcher(root string, debounce time.Duration, c clock.Clock, onChange func()) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}
	if err := fs.Add(root); err != nil {
		_ = fs.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", root)
	}
	for _, m := range mood.All() {
		dir := filepath.Join(root, string(m))
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			if err := fs.Add(dir); err != nil {
				zlog.Warn().Msgf("catalog: failed to watch mood directory: dir=%s err=%v", dir, err)
			}
		}
	}

	zlog.Info().Msgf("catalog: watching library: root=%s debounce=%v", root, debounce)
	return &Watcher{
		fs:       fs,
		root:     root,
		clock:    c,
		debounce: debounce,
		onChange: onChange,
	}, nil
}

// Run processes file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			zlog.Warn().Msgf("catalog: watcher error: %v", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == filepath.Clean(w.root) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.fs.Add(ev.Name); err != nil {
				zlog.Warn().Msgf("catalog: failed to watch new directory: dir=%s err=%v", ev.Name, err)
			}
		}
	}
	if !relevant(ev) {
		return
	}
	zlog.Debug().Msgf("catalog: library change: %s", ev)
	w.schedule()
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = w.clock.AfterFunc(w.debounce, w.onChange)
}

// Close stops watching. A pending rescan is cancelled.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
	return w.fs.Close()
}

// relevant reports whether an event can change the library: a track or
// artwork file, or a directory entry, being added, removed or rewritten.
func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Write) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(ev.Name))
	return ext == "" || slices.Contains(watchedExtensions, ext)
}

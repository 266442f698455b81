package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation is a file change kind.
type Operation int

const (
	// OpCreate indicates the file appeared.
	OpCreate Operation = iota
	// OpModify indicates the file content changed, including atomic replace.
	OpModify
	// OpDelete indicates the file is gone.
	OpDelete
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a change to one watched file.
type FileEvent struct {
	// Name is the base name of the file.
	Name      string
	Operation Operation
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// Files are the base names to report. Required.
	Files []string

	// DebounceWindow coalesces events (default 500ms).
	DebounceWindow time.Duration

	// PollInterval is used in polling mode (default 5s).
	PollInterval time.Duration

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// WithDefaults fills zero values.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = 500 * time.Millisecond
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	return o
}

// Watcher reports debounced changes to the configured files.
type Watcher struct {
	opts      Options
	debouncer *Debouncer
	errs      chan error

	mu      sync.Mutex
	fs      *fsnotify.Watcher
	mode    string
	stopped bool
}

// New creates a Watcher.
func New(opts Options) (*Watcher, error) {
	if len(opts.Files) == 0 {
		return nil, errors.New("watcher needs at least one file name")
	}
	opts = opts.WithDefaults()
	return &Watcher{
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		errs:      make(chan error, 10),
	}, nil
}

// Start watches dir until ctx is done or Stop is called. It blocks.
func (w *Watcher) Start(ctx context.Context, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolve watch directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("create watch directory: %w", err)
	}

	if !w.opts.ForcePolling {
		fw, err := fsnotify.NewWatcher()
		if err == nil {
			err = fw.Add(abs)
			if err != nil {
				_ = fw.Close()
			}
		}
		if err == nil {
			w.mu.Lock()
			w.fs, w.mode = fw, "fsnotify"
			w.mu.Unlock()
			slog.Info("watcher_started", slog.String("dir", abs), slog.String("mode", "fsnotify"))
			return w.runFsnotify(ctx, fw)
		}
		slog.Warn("watcher_fsnotify_unavailable", slog.String("error", err.Error()))
	}

	w.mu.Lock()
	w.mode = "polling"
	w.mu.Unlock()
	slog.Info("watcher_started", slog.String("dir", abs), slog.String("mode", "polling"))
	return w.runPolling(ctx, abs)
}

func (w *Watcher) runFsnotify(ctx context.Context, fw *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !slices.Contains(w.opts.Files, name) {
				continue
			}
			var op Operation
			switch {
			case ev.Has(fsnotify.Create):
				op = OpCreate
			case ev.Has(fsnotify.Write):
				op = OpModify
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				op = OpDelete
			default:
				continue
			}
			w.debouncer.Add(FileEvent{Name: name, Operation: op, Timestamp: time.Now()})
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

type snapshot struct {
	exists  bool
	modTime time.Time
	size    int64
}

func (w *Watcher) stat(dir string) map[string]snapshot {
	out := make(map[string]snapshot, len(w.opts.Files))
	for _, name := range w.opts.Files {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			out[name] = snapshot{}
			continue
		}
		out[name] = snapshot{exists: true, modTime: info.ModTime(), size: info.Size()}
	}
	return out
}

func (w *Watcher) runPolling(ctx context.Context, dir string) error {
	prev := w.stat(dir)
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if w.isStopped() {
				return nil
			}
			cur := w.stat(dir)
			for _, name := range w.opts.Files {
				before, after := prev[name], cur[name]
				var op Operation
				switch {
				case !before.exists && after.exists:
					op = OpCreate
				case before.exists && !after.exists:
					op = OpDelete
				case after.exists && (!after.modTime.Equal(before.modTime) || after.size != before.size):
					op = OpModify
				default:
					continue
				}
				w.debouncer.Add(FileEvent{Name: name, Operation: op, Timestamp: time.Now()})
			}
			prev = cur
		}
	}
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errs <- err:
	default:
		slog.Warn("watcher_error_dropped", slog.String("error", err.Error()))
	}
}

func (w *Watcher) isStopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

// Events returns debounced batches. Closed by Stop.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error {
	return w.errs
}

// Mode reports "fsnotify", "polling", or "" before Start.
func (w *Watcher) Mode() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

// Stop releases resources. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	w.debouncer.Stop()
	if w.fs != nil {
		return w.fs.Close()
	}
	return nil
}

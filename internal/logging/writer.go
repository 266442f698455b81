package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
)

// RotatingWriter appends JSON log lines to a file and rolls it over by size.
// Rolled files are named autowriter.log.1 (newest) up to autowriter.log.N,
// which is the layout Generations and the log viewer read back.
type RotatingWriter struct {
	path     string
	maxSize  int64
	maxFiles int

	mu            sync.Mutex
	file          *os.File
	written       int64
	immediateSync bool
}

// NewRotatingWriter opens path for appending. The file rolls over once a
// write would take it past maxSizeMB, and at most maxFiles rolled files
// are kept.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	w := &RotatingWriter{
		path:          path,
		maxSize:       int64(maxSizeMB) << 20,
		maxFiles:      maxFiles,
		immediateSync: true,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// SetImmediateSync controls whether every write is synced, which keeps
// `autowriter logs -f` current.
func (w *RotatingWriter) SetImmediateSync(enabled bool) {
	w.mu.Lock()
	w.immediateSync = enabled
	w.mu.Unlock()
}

// Write appends p. A record is never split across two files: the roll
// happens before a write that would not fit.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.written+int64(len(p)) > w.maxSize {
		if err := w.roll(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "autowriter: log rotation failed: %v\n", err)
			if w.file == nil {
				return 0, err
			}
		}
	}

	n, err := w.file.Write(p)
	w.written += int64(n)
	if err == nil && w.immediateSync {
		_ = w.file.Sync()
	}
	return n, err
}

// Sync flushes the current file.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close closes the current file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = f
	w.written = info.Size()
	return nil
}

// roll closes the live file, shifts every rolled file up one number,
// drops those past maxFiles and starts an empty live file.
func (w *RotatingWriter) roll() error {
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("failed to close log file: %w", err)
		}
		w.file = nil
	}

	rolled, err := rolledFiles(w.path)
	if err != nil {
		return err
	}
	// Oldest first, so a rename never lands on a file still to be moved.
	for _, r := range rolled {
		if r.num >= w.maxFiles {
			_ = os.Remove(r.path)
			continue
		}
		_ = os.Rename(r.path, rolledName(w.path, r.num+1))
	}

	if w.maxFiles > 0 {
		if err := os.Rename(w.path, rolledName(w.path, 1)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	} else if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to truncate log file: %w", err)
	}
	return w.open()
}

type rolledFile struct {
	path string
	num  int
}

func rolledName(path string, n int) string {
	return path + "." + strconv.Itoa(n)
}

// rolledFiles lists path.N files, highest number (oldest) first.
func rolledFiles(path string) ([]rolledFile, error) {
	base := filepath.Base(path)
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), base+".*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list rotated logs: %w", err)
	}
	var files []rolledFile
	for _, m := range matches {
		num, err := strconv.Atoi(strings.TrimPrefix(filepath.Base(m), base+"."))
		if err != nil || num < 1 {
			continue
		}
		files = append(files, rolledFile{path: m, num: num})
	}
	slices.SortFunc(files, func(a, b rolledFile) int { return b.num - a.num })
	return files, nil
}

// Generations returns the log files behind path in write order: rolled
// files oldest first, then path itself when it exists.
func Generations(path string) ([]string, error) {
	rolled, err := rolledFiles(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rolled)+1)
	for _, r := range rolled {
		out = append(out, r.path)
	}
	if _, err := os.Stat(path); err == nil {
		out = append(out, path)
	}
	return out, nil
}

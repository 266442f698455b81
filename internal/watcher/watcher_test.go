package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitBatch(t *testing.T, w *Watcher) []FileEvent {
	t.Helper()
	select {
	case batch := <-w.Events():
		return batch
	case <-time.After(5 * time.Second):
		t.Fatal("no events")
		return nil
	}
}

func TestNew_RequiresFiles(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestWatcher_ReportsWatchedFileOnly(t *testing.T) {
	for _, polling := range []bool{false, true} {
		mode := map[bool]string{false: "fsnotify", true: "polling"}[polling]
		t.Run(mode, func(t *testing.T) {
			// Given: a watcher on manifest.json
			dir := t.TempDir()
			w, err := New(Options{
				Files:          []string{"manifest.json"},
				DebounceWindow: 20 * time.Millisecond,
				PollInterval:   20 * time.Millisecond,
				ForcePolling:   polling,
			})
			require.NoError(t, err)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go func() { _ = w.Start(ctx, dir) }()
			defer w.Stop()
			require.Eventually(t, func() bool { return w.Mode() != "" }, time.Second, 5*time.Millisecond)
			time.Sleep(50 * time.Millisecond)

			// When: an unrelated file and the manifest are written
			require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte("{}"), 0o644))

			// Then: only the manifest is reported
			batch := waitBatch(t, w)
			require.NotEmpty(t, batch)
			for _, ev := range batch {
				assert.Equal(t, "manifest.json", ev.Name)
			}
			assert.Equal(t, mode, w.Mode())
		})
	}
}

package retrieve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/autowriter/internal/store"
	"github.com/Aman-CERP/autowriter/internal/watcher"
)

func TestWatchManifest_ReloadsCompletedBuild(t *testing.T) {
	// Given: loaded assets and a polling watcher
	emb := &queryEmbedder{}
	dir := t.TempDir()
	paths := writeFixture(t, dir, emb.ModelName(), toyotaHonda())
	loader, err := NewLoader(LoaderConfig{Paths: paths, Embedder: emb})
	require.NoError(t, err)
	_, err = loader.Get(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- WatchManifest(ctx, loader, watcher.Options{
			ForcePolling:   true,
			PollInterval:   20 * time.Millisecond,
			DebounceWindow: 20 * time.Millisecond,
		})
	}()
	time.Sleep(60 * time.Millisecond)

	// When: a new build completes
	writeFixture(t, dir, emb.ModelName(), toyotaHonda()[:4])

	// Then: the loader serves the new assets
	assert.Eventually(t, func() bool {
		a, err := loader.Get(context.Background())
		return err == nil && a.Count() == 4
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestReloadOnManifest_SkipsIncompleteBuild(t *testing.T) {
	// Given: loaded assets and an in-progress manifest
	emb := &queryEmbedder{}
	dir := t.TempDir()
	paths := writeFixture(t, dir, emb.ModelName(), toyotaHonda())
	loader, err := NewLoader(LoaderConfig{Paths: paths, Embedder: emb})
	require.NoError(t, err)
	_, err = loader.Get(context.Background())
	require.NoError(t, err)

	m, err := store.ReadManifest(paths.Manifest())
	require.NoError(t, err)
	m.Complete = false
	require.NoError(t, store.WriteManifest(paths.Manifest(), m))

	// When
	reloadOnManifest(context.Background(), loader, []watcher.FileEvent{{Name: store.ManifestFile, Operation: watcher.OpModify}})

	// Then: no reload was attempted
	assert.Equal(t, int64(1), loader.Loads())
}

package retrieve

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/autowriter/internal/store"
	"github.com/Aman-CERP/autowriter/internal/watcher"
)

// WatchManifest reloads the loader's assets whenever a completed build
// rewrites manifest.json. It blocks until ctx is done.
func WatchManifest(ctx context.Context, loader *Loader, opts watcher.Options) error {
	opts.Files = []string{store.ManifestFile}
	w, err := watcher.New(opts)
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	errc := make(chan error, 1)
	go func() { errc <- w.Start(ctx, loader.Paths().Dir) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			if ctx.Err() != nil {
				return nil
			}
			return err
		case err := <-w.Errors():
			slog.Warn("manifest_watch_error", slog.String("error", err.Error()))
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			reloadOnManifest(ctx, loader, batch)
		}
	}
}

func reloadOnManifest(ctx context.Context, loader *Loader, batch []watcher.FileEvent) {
	for _, ev := range batch {
		if ev.Operation == watcher.OpDelete {
			continue
		}
		m, err := store.ReadManifest(loader.Paths().Manifest())
		if err != nil {
			slog.Debug("assets_reload_skipped", slog.String("reason", err.Error()))
			return
		}
		if !m.Complete {
			slog.Debug("assets_reload_skipped", slog.String("reason", "build in progress"))
			return
		}
		if _, err := loader.Reload(ctx); err != nil {
			slog.Warn("assets_reload_failed", slog.String("error", err.Error()))
			return
		}
		slog.Info("assets_reloaded", slog.Int("vectors", m.Vectors))
		return
	}
}

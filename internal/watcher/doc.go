// Package watcher reports changes to a fixed set of files in one directory,
// such as the build manifest of a data directory.
//
// It watches with fsnotify and falls back to polling file metadata when
// fsnotify cannot be initialized (network mounts, some container volumes).
// Bursts of events are debounced so that a build checkpoint, which rewrites
// several files, is reported once.
//
//	w, err := watcher.New(watcher.Options{Files: []string{"manifest.json"}})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go w.Start(ctx, dataDir)
//	for batch := range w.Events() {
//	    reload()
//	}
package watcher

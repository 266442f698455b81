package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per progress event, for CI and pipes.
// Embedding progress is throttled to one line per interval.
type PlainRenderer struct {
	mu        sync.Mutex
	out       io.Writer
	interval  time.Duration
	lastEmbed time.Time
	errors    int
	warnings  int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, interval: time.Second}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage == StageEmbedding && event.Message == "" {
		now := time.Now()
		if !r.lastEmbed.IsZero() && now.Sub(r.lastEmbed) < r.interval && event.Current != event.Total {
			return
		}
		r.lastEmbed = now
	}

	switch {
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d", event.Stage.Icon(), event.Current, event.Total)
		if event.Message != "" {
			_, _ = fmt.Fprintf(r.out, " - %s", event.Message)
		}
		_, _ = fmt.Fprintln(r.out)
	case event.Message != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Message)
	default:
		_, _ = fmt.Fprintf(r.out, "[%s] %d\n", event.Stage.Icon(), event.Current)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
		r.warnings++
	} else {
		r.errors++
	}
	if event.Source != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Source, event.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d chunks indexed in %s", stats.Chunks, stats.Duration.Round(100*time.Millisecond))
	if stats.Skipped > 0 {
		_, _ = fmt.Fprintf(r.out, " (resumed after %d, embedded %d)", stats.Skipped, stats.Embedded)
	}
	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.Stages.Embed > 0 {
		rate := float64(stats.Embedded) / stats.Stages.Embed.Seconds()
		_, _ = fmt.Fprintf(r.out, "  Embed: %s (%d chunks @ %.1f/sec)\n",
			stats.Stages.Embed.Round(100*time.Millisecond), stats.Embedded, rate)
	}
	if stats.Checkpoints > 0 {
		_, _ = fmt.Fprintf(r.out, "  Save:  %s (%d checkpoints)\n",
			stats.Stages.Save.Round(100*time.Millisecond), stats.Checkpoints)
	}
	if stats.Embedder.Model != "" {
		_, _ = fmt.Fprintf(r.out, "Index: %s (%s, %d dims)\n", stats.Backend, stats.Embedder.Model, stats.Embedder.Dimensions)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)

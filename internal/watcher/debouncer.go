package watcher

import (
	"log/slog"
	"sync"
	"time"
)

// Debouncer merges events per file until the window passes without new
// events, then emits one batch. Merge rules:
//   - CREATE then MODIFY stays CREATE
//   - CREATE then DELETE cancels out
//   - DELETE then CREATE becomes MODIFY (atomic replace)
//   - otherwise the later event wins
type Debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]FileEvent
	order   []string
	timer   *time.Timer
	output  chan []FileEvent
	stopped bool
}

// NewDebouncer creates a Debouncer.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		pending: make(map[string]FileEvent),
		output:  make(chan []FileEvent, 10),
	}
}

// Add queues an event.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	prev, seen := d.pending[event.Name]
	switch {
	case !seen:
		d.pending[event.Name] = event
		d.order = append(d.order, event.Name)
	case prev.Operation == OpCreate && event.Operation == OpModify:
		// keep CREATE
	case prev.Operation == OpCreate && event.Operation == OpDelete:
		delete(d.pending, event.Name)
	case prev.Operation == OpDelete && event.Operation == OpCreate:
		event.Operation = OpModify
		d.pending[event.Name] = event
	default:
		d.pending[event.Name] = event
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		d.order = d.order[:0]
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, name := range d.order {
		if ev, ok := d.pending[name]; ok {
			batch = append(batch, ev)
		}
	}
	d.pending = make(map[string]FileEvent)
	d.order = d.order[:0]

	select {
	case d.output <- batch:
	default:
		slog.Warn("watcher_batch_dropped", slog.Int("events", len(batch)))
	}
}

// Output returns emitted batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop discards pending events and closes Output. Safe to call twice.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}

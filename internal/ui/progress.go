package ui

import (
	"sync"
	"time"
)

// etaSmoothingFactor weights a new ETA against the previous one.
const etaSmoothingFactor = 0.3

// speedSampleInterval is the minimum time between throughput samples.
const speedSampleInterval = 500 * time.Millisecond

// ProgressTracker holds build progress for the TUI. It is safe for
// concurrent use.
type ProgressTracker struct {
	mu         sync.Mutex
	stage      Stage
	current    int
	total      int
	message    string
	stageStart time.Time
	lastETA    time.Duration
	errors     int
	warnings   int

	lastCurrent int
	lastSample  time.Time
	speed       SpeedStats
	samples     int
}

// SpeedStats is chunk throughput in chunks per second.
type SpeedStats struct {
	Current float64
	Avg     float64
	Peak    float64
}

// ProgressStats is a snapshot of a ProgressTracker.
type ProgressStats struct {
	Stage      Stage
	Current    int
	Total      int
	Progress   float64
	ETA        time.Duration
	Message    string
	ErrorCount int
	WarnCount  int
	Speed      SpeedStats
}

// NewProgressTracker creates a tracker in StageEmbedding.
func NewProgressTracker() *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{stage: StageEmbedding, stageStart: now, lastSample: now}
}

// Apply records an event. Changing stage resets the stage clock but keeps
// throughput history, since checkpoints interrupt embedding briefly.
func (p *ProgressTracker) Apply(event ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if event.Stage != p.stage {
		if event.Stage == StageEmbedding && p.stage != StageCheckpoint {
			p.stageStart = time.Now()
			p.lastETA = 0
		}
		p.stage = event.Stage
	}
	if event.Total > 0 {
		p.total = event.Total
	}
	p.message = event.Message

	if event.Stage == StageEmbedding {
		p.sample(event.Current)
	}
	p.current = event.Current
}

// sample updates throughput. Must be called with the lock held.
func (p *ProgressTracker) sample(current int) {
	now := time.Now()
	elapsed := now.Sub(p.lastSample)
	if elapsed < speedSampleInterval {
		return
	}
	if delta := current - p.lastCurrent; delta > 0 {
		speed := float64(delta) / elapsed.Seconds()
		p.speed.Current = speed
		p.samples++
		if p.samples == 1 {
			p.speed.Avg = speed
		} else {
			p.speed.Avg = 0.2*speed + 0.8*p.speed.Avg
		}
		p.speed.Peak = max(p.speed.Peak, speed)
	}
	p.lastCurrent = current
	p.lastSample = now
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return ProgressStats{
		Stage:      p.stage,
		Current:    p.current,
		Total:      p.total,
		Progress:   p.progress(),
		ETA:        p.calculateETA(),
		Message:    p.message,
		ErrorCount: p.errors,
		WarnCount:  p.warnings,
		Speed:      p.speed,
	}
}

func (p *ProgressTracker) progress() float64 {
	if p.total == 0 {
		return 0
	}
	return min(float64(p.current)/float64(p.total), 1.0)
}

// calculateETA estimates remaining time with exponential smoothing. Must be
// called with the lock held.
func (p *ProgressTracker) calculateETA() time.Duration {
	progress := p.progress()
	if p.current == 0 || progress <= 0 || progress >= 1 {
		return 0
	}

	elapsed := time.Since(p.stageStart)
	remaining := time.Duration(float64(elapsed)/progress) - elapsed
	if remaining < 0 {
		return 0
	}
	if p.lastETA == 0 {
		p.lastETA = remaining
		return remaining
	}
	p.lastETA = time.Duration(etaSmoothingFactor*float64(remaining) + (1-etaSmoothingFactor)*float64(p.lastETA))
	return p.lastETA
}

package generate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const validOutputJSON = `{
  "description_paragraph": "A refined sedan with a calm cabin. سيارة سيدان أنيقة.",
  "bullet_highlights": ["Leather seats", "Sunroof", "Adaptive cruise", "Apple CarPlay", "Full service history"],
  "keywords": ["sedan", "leather", "sunroof", "gcc", "low mileage", "automatic", "camry", "toyota", "hybrid", "family"],
  "warnings": [],
  "detected_entities": {
    "make": "Toyota",
    "model": "Camry",
    "year": 2021,
    "trim": null,
    "mileage": "45,000 km",
    "transmission": "automatic",
    "engine": null,
    "condition": "used"
  },
  "evidence": [{"chunk_id": "camry-2021-p3-c2", "note": "Sunroof listed in the trim table."}]
}`

// fakeBackend is a scripted TextGenerator.
type fakeBackend struct {
	mu       sync.Mutex
	response string
	err      error
	delay    time.Duration
	prompts  []string

	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeBackend) Name() string  { return "fake" }
func (f *fakeBackend) Model() string { return "fake-model" }

func (f *fakeBackend) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	resp, err, delay := f.response, f.err, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return resp, err
}

func (f *fakeBackend) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[len(f.prompts)-1]
}

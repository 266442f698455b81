package embed

import (
	"context"
	"math"
	"sync/atomic"
)

// mockEmbedder is a test double that counts calls.
type mockEmbedder struct {
	embedCalls atomic.Int64
	batchCalls atomic.Int64
	texts      atomic.Int64
	dimensions int
	modelName  string
}

func newMockEmbedder(dims int) *mockEmbedder {
	return &mockEmbedder{dimensions: dims, modelName: "mock-model"}
}

func (m *mockEmbedder) vector(text string) []float32 {
	v := make([]float32, m.dimensions)
	v[len(text)%m.dimensions] = 1
	return v
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	return m.vector(text), nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	m.texts.Add(int64(len(texts)))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vector(t)
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int                  { return m.dimensions }
func (m *mockEmbedder) ModelName() string                { return m.modelName }
func (m *mockEmbedder) Available(_ context.Context) bool { return true }
func (m *mockEmbedder) Close() error                     { return nil }

// fakeRemote is an in-memory RemoteCache.
type fakeRemote struct {
	data map[string][]float32
	gets atomic.Int64
}

func newFakeRemote() *fakeRemote { return &fakeRemote{data: map[string][]float32{}} }

func (f *fakeRemote) Get(_ context.Context, key string) ([]float32, bool, error) {
	f.gets.Add(1)
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeRemote) Set(_ context.Context, key string, vec []float32) error {
	f.data[key] = vec
	return nil
}

func (f *fakeRemote) Close() error { return nil }

// vectorMagnitude computes the magnitude of a vector.
func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

func dotProduct(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

package autopoiesis

import (
	"context"
	"sync"

	"github.com/neuroidss/ToolArtifact/internal/store"
)

// --- MockProvider ---

type MockProvider struct {
	CompleteFunc func(ctx context.Context, prompt string) (string, error)

	mu      sync.Mutex
	Prompts []string
}

func (m *MockProvider) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return "", nil
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

// --- MockEmbedder ---

type MockEmbedder struct {
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float32{1, 0, 0}, nil
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (m *MockEmbedder) Dimensions() int { return 3 }
func (m *MockEmbedder) Name() string    { return "mock" }

// --- MockStore ---

// MockStore wraps a real store and lets tests override individual calls.
type MockStore struct {
	store.VectorStore

	GetFunc   func(ctx context.Context, id string) (store.Record, error)
	AddFunc   func(ctx context.Context, rec store.Record) error
	QueryFunc func(ctx context.Context, vec []float32, k int) ([]store.Match, error)

	mu   sync.Mutex
	Adds int
}

func (m *MockStore) Get(ctx context.Context, id string) (store.Record, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return m.VectorStore.Get(ctx, id)
}

func (m *MockStore) Add(ctx context.Context, rec store.Record) error {
	m.mu.Lock()
	m.Adds++
	m.mu.Unlock()
	if m.AddFunc != nil {
		return m.AddFunc(ctx, rec)
	}
	return m.VectorStore.Add(ctx, rec)
}

func (m *MockStore) Query(ctx context.Context, vec []float32, k int) ([]store.Match, error) {
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, vec, k)
	}
	return m.VectorStore.Query(ctx, vec, k)
}

func (m *MockStore) AddCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Adds
}

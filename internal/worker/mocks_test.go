package worker_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"ragdocs/internal/extract"
	"ragdocs/internal/vector"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// FuncExtractor answers ExtractContent with fn and counts calls per URL.
type FuncExtractor struct {
	mu    sync.Mutex
	calls map[string]int
	fn    func(ctx context.Context, url string) (*extract.Content, error)
}

func NewFuncExtractor(fn func(ctx context.Context, url string) (*extract.Content, error)) *FuncExtractor {
	return &FuncExtractor{calls: make(map[string]int), fn: fn}
}

func (f *FuncExtractor) ExtractContent(ctx context.Context, url string) (*extract.Content, error) {
	f.mu.Lock()
	f.calls[url]++
	f.mu.Unlock()
	return f.fn(ctx, url)
}

func (f *FuncExtractor) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *FuncExtractor) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// FakeIndex keeps chunks in memory keyed by id and records the call order.
type FakeIndex struct {
	mu        sync.Mutex
	chunks    map[string]vector.Chunk
	ops       []string
	upsertErr error
}

func NewFakeIndex() *FakeIndex {
	return &FakeIndex{chunks: make(map[string]vector.Chunk)}
}

func (f *FakeIndex) DeleteByURL(ctx context.Context, urls []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := make(map[string]bool)
	for _, u := range urls {
		set[u] = true
		f.ops = append(f.ops, "delete "+u)
	}
	for id, c := range f.chunks {
		if set[c.URL] {
			delete(f.chunks, id)
		}
	}
	return nil
}

func (f *FakeIndex) Upsert(ctx context.Context, chunks []vector.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for _, c := range chunks {
		f.chunks[c.ID] = c
		f.ops = append(f.ops, "upsert "+c.URL)
	}
	return nil
}

func (f *FakeIndex) ChunksFor(url string) []vector.Chunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []vector.Chunk
	for _, c := range f.chunks {
		if c.URL == url {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeIndex) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

type FakePublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func (p *FakePublisher) Publish(topic string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.messages == nil {
		p.messages = make(map[string][][]byte)
	}
	p.messages[topic] = append(p.messages[topic], body)
	return nil
}

func (p *FakePublisher) Messages(topic string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.messages[topic]
}

// Package ragtest provides deterministic collaborators for exercising the rag core.
package ragtest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
)

// HashProvider embeds text as a bag of hashed lowercase words. The same text
// always yields the same vector, and texts sharing words are similar.
type HashProvider struct {
	Dim int
	Err error

	mu    sync.Mutex
	calls int
	texts int
}

func NewHashProvider(dim int) *HashProvider {
	return &HashProvider{Dim: dim}
}

func (p *HashProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls++
	p.texts += len(texts)
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vector(t)
	}
	return out, nil
}

func (p *HashProvider) vector(text string) []float32 {
	v := make([]float32, p.Dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if w == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[int(h.Sum32())%p.Dim]++
	}
	// keep whitespace-free texts from producing a zero vector
	v[0] += 0.01
	return v
}

func (p *HashProvider) ModelName() string { return "hash" }

// Calls returns the number of Embed calls made so far.
func (p *HashProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Texts returns the number of texts embedded so far.
func (p *HashProvider) Texts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texts
}

// RecordingGenerator returns Reply and remembers every prompt it was given.
type RecordingGenerator struct {
	Reply string
	Err   error

	mu      sync.Mutex
	prompts []string
	opts    []rag.GenerateOptions
}

func (g *RecordingGenerator) Generate(_ context.Context, prompt string, opts rag.GenerateOptions) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	g.opts = append(g.opts, opts)
	if g.Err != nil {
		return "", g.Err
	}
	return g.Reply, nil
}

func (g *RecordingGenerator) ModelName() string { return "recording" }

func (g *RecordingGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

func (g *RecordingGenerator) Options() []rag.GenerateOptions {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]rag.GenerateOptions(nil), g.opts...)
}

// StaticExtractor ignores the upload and returns Text.
type StaticExtractor struct {
	Text string
	Err  error
}

func (e StaticExtractor) Extract(context.Context, string, []byte) (string, error) {
	return e.Text, e.Err
}

// PlainExtractor returns the uploaded bytes as text.
type PlainExtractor struct{}

func (PlainExtractor) Extract(_ context.Context, _ string, data []byte) (string, error) {
	return string(data), nil
}

// FlakyStore wraps a store and fails selected operations.
type FlakyStore struct {
	rag.CollectionStore

	AddErr  error
	mu      sync.Mutex
	DropErr []error // consumed one per Drop call, nil entries succeed
	drops   []string
}

func (s *FlakyStore) Add(ctx context.Context, c rag.Collection, chunks []rag.Chunk, vectors [][]float32) error {
	if s.AddErr != nil {
		return s.AddErr
	}
	return s.CollectionStore.Add(ctx, c, chunks, vectors)
}

func (s *FlakyStore) Drop(ctx context.Context, name string) error {
	s.mu.Lock()
	s.drops = append(s.drops, name)
	var err error
	if len(s.DropErr) > 0 {
		err, s.DropErr = s.DropErr[0], s.DropErr[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.CollectionStore.Drop(ctx, name)
}

// Drops returns every name passed to Drop, failed attempts included.
func (s *FlakyStore) Drops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.drops...)
}

// SyncRetirer drops retired collections immediately.
type SyncRetirer struct {
	Store rag.CollectionStore
}

func (r SyncRetirer) Retire(ctx context.Context, name string) error {
	return r.Store.Drop(ctx, name)
}

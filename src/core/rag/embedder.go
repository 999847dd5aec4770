package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vibeee34/chatbot-gemini/src/log"
)

// EmbeddingProvider is a remote or local embedding model.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// Embedder maps text to vectors of one fixed dimension.
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	ModelName() string
}

const embeddingProbe = "dimension probe"

// LazyEmbedder initializes its provider once, on first use or on an explicit
// Init call. An initialization failure is permanent for the lifetime of the
// embedder and every later call returns ErrEmbedderUnavailable.
type LazyEmbedder struct {
	provider  EmbeddingProvider
	timeout   time.Duration
	batchSize int

	once    sync.Once
	dim     int
	initErr error
}

type EmbedderOption func(*LazyEmbedder)

// WithEmbedTimeout bounds every provider call.
func WithEmbedTimeout(d time.Duration) EmbedderOption {
	return func(e *LazyEmbedder) {
		e.timeout = d
	}
}

// WithBatchSize caps the number of texts per provider call.
func WithBatchSize(n int) EmbedderOption {
	return func(e *LazyEmbedder) {
		e.batchSize = n
	}
}

func NewLazyEmbedder(provider EmbeddingProvider, opts ...EmbedderOption) *LazyEmbedder {
	e := &LazyEmbedder{
		provider:  provider,
		timeout:   30 * time.Second,
		batchSize: 64,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.batchSize <= 0 {
		e.batchSize = 64
	}
	return e
}

// Init probes the provider to establish the vector dimension.
func (e *LazyEmbedder) Init(ctx context.Context) error {
	e.once.Do(func() {
		vecs, err := e.call(ctx, []string{embeddingProbe})
		switch {
		case err != nil:
			e.initErr = fmt.Errorf("%w: model %s: %v", ErrEmbedderUnavailable, e.provider.ModelName(), err)
		case len(vecs) != 1 || len(vecs[0]) == 0:
			e.initErr = fmt.Errorf("%w: model %s returned no vector", ErrEmbedderUnavailable, e.provider.ModelName())
		default:
			e.dim = len(vecs[0])
			log.Info("embedding model ready", "model", e.provider.ModelName(), "dimension", e.dim)
		}
	})
	return e.initErr
}

func (e *LazyEmbedder) Dimension() int {
	return e.dim
}

func (e *LazyEmbedder) ModelName() string {
	return e.provider.ModelName()
}

func (e *LazyEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *LazyEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	return e.EmbedWithProgress(ctx, texts, nil)
}

// EmbedWithProgress embeds texts in batches, reporting after each batch.
func (e *LazyEmbedder) EmbedWithProgress(ctx context.Context, texts []string, progress ProgressFunc) ([][]float32, error) {
	if err := e.Init(ctx); err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))

		vecs, err := e.call(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: embed batch %d-%d: %v", ErrServiceUnavailable, start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts", ErrVectorCountMismatch, len(vecs), end-start)
		}
		for i, v := range vecs {
			if len(v) != e.dim {
				return nil, fmt.Errorf("%w: text %d has dimension %d, model dimension is %d", ErrDimensionMismatch, start+i, len(v), e.dim)
			}
		}
		out = append(out, vecs...)

		if progress != nil {
			progress(len(out), len(texts))
		}
	}
	return out, nil
}

func (e *LazyEmbedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	vecs, err := e.provider.Embed(ctx, texts)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("embedding timed out after %s: %w", e.timeout, err)
	}
	return vecs, err
}

// Ping reports the initialization state without calling the provider again.
func (e *LazyEmbedder) Ping(ctx context.Context) error {
	return e.Init(ctx)
}

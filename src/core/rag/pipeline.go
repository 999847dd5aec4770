package rag

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vibeee34/chatbot-gemini/src/log"
	"github.com/vibeee34/chatbot-gemini/src/metrics"
)

// Retirer schedules the removal of a collection that is no longer active.
type Retirer interface {
	Retire(ctx context.Context, name string) error
}

type progressEmbedder interface {
	EmbedWithProgress(ctx context.Context, texts []string, progress ProgressFunc) ([][]float32, error)
}

// Pipeline turns one uploaded document into the active collection. At most
// one ingestion runs at a time.
type Pipeline struct {
	extractor    TextExtractor
	chunker      *Chunker
	embedder     Embedder
	store        CollectionStore
	pointer      *ActivePointer
	retirer      Retirer
	storeTimeout time.Duration

	sem chan struct{}
}

type PipelineOption func(*Pipeline)

// WithStoreTimeout bounds every collection store call made during ingestion.
func WithStoreTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.storeTimeout = d
	}
}

func NewPipeline(
	extractor TextExtractor,
	chunker *Chunker,
	embedder Embedder,
	store CollectionStore,
	pointer *ActivePointer,
	retirer Retirer,
	opts ...PipelineOption,
) *Pipeline {
	p := &Pipeline{
		extractor:    extractor,
		chunker:      chunker,
		embedder:     embedder,
		store:        store,
		pointer:      pointer,
		retirer:      retirer,
		storeTimeout: 30 * time.Second,
		sem:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest extracts, chunks, embeds and stores the upload in a new collection,
// then makes it active and retires the previous one. The active collection is
// left untouched on any failure.
func (p *Pipeline) Ingest(ctx context.Context, up Upload) (*IngestResult, error) {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-p.sem }()

	start := time.Now()
	res, err := p.ingest(ctx, up)
	if err != nil {
		metrics.IngestionsTotal.WithLabelValues(Kind(err).String()).Inc()
		log.Error(err, "ingestion failed", "file", up.Filename, "duration", time.Since(start))
		return nil, err
	}

	metrics.IngestionsTotal.WithLabelValues("ok").Inc()
	metrics.ChunksIngestedTotal.Add(float64(res.Chunks))
	log.Info("document ingested",
		"file", res.Filename,
		"collection", res.Collection,
		"chunks", res.Chunks,
		"dimension", res.Dimension,
		"duration", time.Since(start),
	)
	return res, nil
}

func (p *Pipeline) ingest(ctx context.Context, up Upload) (*IngestResult, error) {
	if len(up.Data) == 0 {
		return nil, ErrEmptyDocument
	}

	text, err := p.extractor.Extract(ctx, up.Filename, up.Data)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", up.Filename, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoExtractableText
	}

	chunks, err := p.chunker.Split(text)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", up.Filename, err)
	}
	texts := chunks.Texts()

	vectors, err := p.embed(ctx, texts, up.Progress)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", up.Filename, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: %d vectors for %d chunks", ErrVectorCountMismatch, len(vectors), len(texts))
	}

	stored := make([]Chunk, 0, len(texts))
	for i, t := range chunks.Positioned() {
		stored = append(stored, Chunk{Position: i, Content: t})
	}

	name := NewCollectionName()
	if err := p.populate(ctx, name, stored, vectors); err != nil {
		return nil, err
	}

	prev := p.pointer.Swap(name)
	if prev != "" && prev != name {
		if err := p.retirer.Retire(context.WithoutCancel(ctx), prev); err != nil {
			log.Error(err, "failed to schedule retired collection drop", "collection", prev)
		}
	}

	return &IngestResult{
		Filename:   up.Filename,
		Collection: name,
		Chunks:     len(stored),
		Dimension:  len(vectors[0]),
		Retired:    prev,
	}, nil
}

func (p *Pipeline) embed(ctx context.Context, texts []string, progress ProgressFunc) ([][]float32, error) {
	if pe, ok := p.embedder.(progressEmbedder); ok {
		return pe.EmbedWithProgress(ctx, texts, progress)
	}
	vectors, err := p.embedder.EmbedMany(ctx, texts)
	if err == nil && progress != nil {
		progress(len(vectors), len(texts))
	}
	return vectors, err
}

// discard removes a collection that was created but never made active.
func (p *Pipeline) discard(name string) {
	ctx, cancel := p.bounded(context.Background())
	defer cancel()
	if err := p.store.Drop(ctx, name); err != nil {
		log.Error(err, "failed to drop incomplete collection", "collection", name)
	}
}

func (p *Pipeline) populate(ctx context.Context, name string, chunks []Chunk, vectors [][]float32) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()

	c, err := p.store.Create(ctx, name)
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	if err := p.store.Add(ctx, c, chunks, vectors); err != nil {
		p.discard(name)
		return fmt.Errorf("add %d chunks to %s: %w", len(chunks), name, err)
	}
	return nil
}

func (p *Pipeline) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.storeTimeout)
}

// NewCollectionName returns "documents_" followed by a random 128-bit identifier in hex.
func NewCollectionName() string {
	id := uuid.New()
	return CollectionPrefix + hex.EncodeToString(id[:])
}

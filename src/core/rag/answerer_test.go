package rag_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
	"github.com/vibeee34/chatbot-gemini/src/core/rag/ragtest"
	"github.com/vibeee34/chatbot-gemini/src/storage/memory"
)

func TestAnswerer_AfterIngestion(t *testing.T) {
	f := newFixture(t, ragtest.StaticExtractor{Text: greekText(1500)})
	_, err := f.pipeline.Ingest(context.Background(), rag.Upload{Filename: "greek.pdf", Data: []byte("x")})
	require.NoError(t, err)

	ans, err := f.answerer.Answer(context.Background(), "What is Alpha?")
	require.NoError(t, err)
	assert.Equal(t, "Alpha is the first letter.", ans.Text)
	assert.Len(t, ans.Matches, 2)

	prompts := f.generator.Prompts()
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "What is Alpha?")
	assert.Contains(t, prompts[0], ans.Matches[0].Content)
	assert.Equal(t, []rag.GenerateOptions{{Temperature: 0.1}}, f.generator.Options())
}

func TestAnswerer_NoDocument(t *testing.T) {
	f := newFixture(t, ragtest.PlainExtractor{})

	_, err := f.answerer.Answer(context.Background(), "What is Alpha?")
	assert.ErrorIs(t, err, rag.ErrNoActiveDocument)
	assert.Zero(t, f.provider.Calls())
	assert.Empty(t, f.generator.Prompts())
}

func TestAnswerer_EmptyQuery(t *testing.T) {
	for _, ingested := range []bool{false, true} {
		f := newFixture(t, ragtest.StaticExtractor{Text: greekText(300)})
		if ingested {
			_, err := f.pipeline.Ingest(context.Background(), rag.Upload{Filename: "a.txt", Data: []byte("x")})
			require.NoError(t, err)
		}
		calls := f.provider.Calls()

		for _, q := range []string{"", "   ", "\n\t"} {
			_, err := f.answerer.Answer(context.Background(), q)
			assert.ErrorIs(t, err, rag.ErrEmptyQuery, "ingested=%v query=%q", ingested, q)
		}
		assert.Equal(t, calls, f.provider.Calls())
	}
}

func TestAnswerer_EmptyCollectionSkipsGeneration(t *testing.T) {
	f := newFixture(t, ragtest.PlainExtractor{})
	_, err := f.store.Create(context.Background(), "documents_empty")
	require.NoError(t, err)
	f.pointer.Swap("documents_empty")

	ans, err := f.answerer.Answer(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, rag.NoRelevantContentAnswer, ans.Text)
	assert.Empty(t, ans.Prompt)
	assert.Empty(t, f.generator.Prompts())
}

func TestAnswerer_FewerThanK(t *testing.T) {
	store := memory.NewStore()
	c, err := store.Create(context.Background(), "documents_small")
	require.NoError(t, err)

	provider := ragtest.NewHashProvider(32)
	texts := []string{"alpha beta", "gamma delta", "alpha alpha alpha"}
	vecs, err := provider.Embed(context.Background(), texts)
	require.NoError(t, err)
	chunks := make([]rag.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = rag.Chunk{Position: i, Content: text}
	}
	require.NoError(t, store.Add(context.Background(), c, chunks, vecs))

	pointer := rag.NewActivePointer()
	pointer.Swap(c.Name)
	gen := &ragtest.RecordingGenerator{Reply: "ok"}
	a := rag.NewAnswerer(rag.NewLazyEmbedder(provider), store, pointer, gen, rag.WithTopK(5))

	ans, err := a.Answer(context.Background(), "alpha")
	require.NoError(t, err)
	require.Len(t, ans.Matches, 3)
	assert.Equal(t, "alpha alpha alpha", ans.Matches[0].Content)
	for i := 1; i < len(ans.Matches); i++ {
		assert.GreaterOrEqual(t, ans.Matches[i-1].Score, ans.Matches[i].Score)
	}
	assert.Equal(t, strings.Count(ans.Prompt, rag.ContextDelimiter), 2)
}

func TestAnswerer_GeneratorErrors(t *testing.T) {
	tests := []struct {
		name      string
		generator rag.Generator
		wantErr   error
	}{
		{name: "not configured", generator: nil, wantErr: rag.ErrGeneratorUnconfigured},
		{name: "service error", generator: &ragtest.RecordingGenerator{Err: errors.New("503")}, wantErr: rag.ErrGeneratorUnavailable},
		{name: "timeout", generator: &ragtest.RecordingGenerator{Err: context.DeadlineExceeded}, wantErr: context.DeadlineExceeded},
		{name: "timeout is a generation failure", generator: &ragtest.RecordingGenerator{Err: context.DeadlineExceeded}, wantErr: rag.ErrGeneratorUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, ragtest.StaticExtractor{Text: greekText(300)})
			_, err := f.pipeline.Ingest(context.Background(), rag.Upload{Filename: "a.txt", Data: []byte("x")})
			require.NoError(t, err)

			a := rag.NewAnswerer(f.embedder, f.store, f.pointer, tt.generator)
			_, err = a.Answer(context.Background(), "What is Alpha?")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, rag.KindUnavailable, rag.Kind(err))
		})
	}
}

// stallingGenerator answers only after its context is done.
type stallingGenerator struct{}

func (stallingGenerator) Generate(ctx context.Context, _ string, _ rag.GenerateOptions) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (stallingGenerator) ModelName() string { return "stalling" }

func TestAnswerer_GenerateTimeout(t *testing.T) {
	f := newFixture(t, ragtest.StaticExtractor{Text: greekText(300)})
	_, err := f.pipeline.Ingest(context.Background(), rag.Upload{Filename: "a.txt", Data: []byte("x")})
	require.NoError(t, err)

	a := rag.NewAnswerer(f.embedder, f.store, f.pointer, stallingGenerator{},
		rag.WithQueryTimeouts(0, 20*time.Millisecond))
	_, err = a.Answer(context.Background(), "What is Alpha?")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, rag.ErrGeneratorUnavailable)
	assert.Equal(t, rag.KindUnavailable, rag.Kind(err))
}

func TestAnswerer_ContextBound(t *testing.T) {
	f := newFixture(t, ragtest.StaticExtractor{Text: greekText(3000)})
	_, err := f.pipeline.Ingest(context.Background(), rag.Upload{Filename: "a.txt", Data: []byte("x")})
	require.NoError(t, err)

	a := rag.NewAnswerer(f.embedder, f.store, f.pointer, f.generator, rag.WithMaxContextChars(100))
	ans, err := a.Answer(context.Background(), "Gamma")
	require.NoError(t, err)

	require.Len(t, ans.Matches, 1)
	assert.Len(t, []rune(ans.Matches[0].Content), 100)
}

func TestAnswerer_LeaseReleased(t *testing.T) {
	f := newFixture(t, ragtest.StaticExtractor{Text: greekText(300)})
	res, err := f.pipeline.Ingest(context.Background(), rag.Upload{Filename: "a.txt", Data: []byte("x")})
	require.NoError(t, err)

	_, err = f.answerer.Answer(context.Background(), "Beta")
	require.NoError(t, err)
	assert.Zero(t, f.pointer.Leases(res.Collection))
}

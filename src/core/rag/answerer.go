package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vibeee34/chatbot-gemini/src/log"
	"github.com/vibeee34/chatbot-gemini/src/metrics"
)

// Answerer answers questions from the active collection only.
type Answerer struct {
	embedder  Embedder
	store     CollectionStore
	pointer   *ActivePointer
	generator Generator

	topK            int
	maxContextChars int
	temperature     float64
	storeTimeout    time.Duration
	generateTimeout time.Duration
}

type AnswererOption func(*Answerer)

func WithTopK(k int) AnswererOption {
	return func(a *Answerer) {
		a.topK = k
	}
}

// WithMaxContextChars bounds the retrieved context handed to the generator.
// Zero or less disables the bound.
func WithMaxContextChars(n int) AnswererOption {
	return func(a *Answerer) {
		a.maxContextChars = n
	}
}

func WithTemperature(t float64) AnswererOption {
	return func(a *Answerer) {
		a.temperature = t
	}
}

func WithQueryTimeouts(store, generate time.Duration) AnswererOption {
	return func(a *Answerer) {
		a.storeTimeout = store
		a.generateTimeout = generate
	}
}

// NewAnswerer returns an answerer. generator may be nil, in which case every
// query that reaches generation fails with ErrGeneratorUnconfigured.
func NewAnswerer(embedder Embedder, store CollectionStore, pointer *ActivePointer, generator Generator, opts ...AnswererOption) *Answerer {
	a := &Answerer{
		embedder:        embedder,
		store:           store,
		pointer:         pointer,
		generator:       generator,
		topK:            DefaultTopK,
		maxContextChars: DefaultMaxContextChars,
		temperature:     DefaultTemperature,
		storeTimeout:    30 * time.Second,
		generateTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.topK <= 0 {
		a.topK = DefaultTopK
	}
	return a
}

// Answer retrieves the chunks nearest to query and asks the generator to
// answer from them. A blank query is rejected before the active collection is
// consulted.
func (a *Answerer) Answer(ctx context.Context, query string) (*Answer, error) {
	start := time.Now()
	ans, err := a.answer(ctx, query)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues(Kind(err).String()).Inc()
		if Kind(err) != KindInput {
			log.Error(err, "query failed", "duration", time.Since(start))
		}
		return nil, err
	}

	outcome := "answered"
	if len(ans.Matches) == 0 {
		outcome = "no_matches"
	}
	metrics.QueriesTotal.WithLabelValues(outcome).Inc()
	log.Debug("query answered", "collection", ans.Collection, "matches", len(ans.Matches), "duration", time.Since(start))
	return ans, nil
}

func (a *Answerer) answer(ctx context.Context, query string) (*Answer, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	lease, ok := a.pointer.Acquire()
	if !ok {
		return nil, ErrNoActiveDocument
	}
	defer lease.Release()
	c := lease.Collection()

	vector, err := a.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := a.query(ctx, c, vector)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", c.Name, err)
	}
	if len(matches) == 0 {
		return &Answer{Text: NoRelevantContentAnswer, Collection: c.Name}, nil
	}

	contextText, used := BuildContext(matches, a.maxContextChars)
	if len(used) < len(matches) {
		log.Debug("context truncated", "collection", c.Name, "kept", len(used), "retrieved", len(matches))
	}

	prompt, err := BuildPrompt(contextText, query)
	if err != nil {
		return nil, err
	}

	text, err := a.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return &Answer{
		Text:       text,
		Collection: c.Name,
		Matches:    used,
		Prompt:     prompt,
	}, nil
}

func (a *Answerer) query(ctx context.Context, c Collection, vector []float32) ([]Match, error) {
	if a.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.storeTimeout)
		defer cancel()
	}
	return a.store.Query(ctx, c, vector, a.topK)
}

func (a *Answerer) generate(ctx context.Context, prompt string) (string, error) {
	if a.generator == nil {
		return "", ErrGeneratorUnconfigured
	}
	if a.generateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.generateTimeout)
		defer cancel()
	}

	text, err := a.generator.Generate(ctx, prompt, GenerateOptions{Temperature: a.temperature})
	if err != nil {
		if errors.Is(err, ErrGeneratorUnavailable) || errors.Is(err, ErrGeneratorUnconfigured) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %w", ErrGeneratorUnavailable, a.generator.ModelName(), err)
	}
	return text, nil
}

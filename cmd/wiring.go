package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/viper"
	weaviateClient "github.com/weaviate/weaviate-go-client/v4/weaviate"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
	"github.com/vibeee34/chatbot-gemini/src/extract"
	"github.com/vibeee34/chatbot-gemini/src/infrastructure/cache/valkey"
	"github.com/vibeee34/chatbot-gemini/src/infrastructure/integrations/ollama"
	"github.com/vibeee34/chatbot-gemini/src/infrastructure/integrations/openai"
	"github.com/vibeee34/chatbot-gemini/src/infrastructure/integrations/unstructured"
	"github.com/vibeee34/chatbot-gemini/src/infrastructure/queue"
	"github.com/vibeee34/chatbot-gemini/src/log"
	"github.com/vibeee34/chatbot-gemini/src/storage/elastic"
	"github.com/vibeee34/chatbot-gemini/src/storage/memory"
	"github.com/vibeee34/chatbot-gemini/src/storage/pgvector"
	"github.com/vibeee34/chatbot-gemini/src/storage/weaviate"
)

// app holds the wired core shared by the serve and ask commands.
type app struct {
	store     rag.CollectionStore
	embedder  *rag.LazyEmbedder
	generator rag.Generator
	pointer   *rag.ActivePointer
	pipeline  *rag.Pipeline
	answerer  *rag.Answerer
	system    rag.SystemService
	drops     *rag.DropQueue

	closers []func() error
}

func buildApp(ctx context.Context, backend string) (*app, error) {
	a := &app{pointer: rag.NewActivePointer()}

	store, closeStore, err := buildStore(ctx, backend)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, closeStore)

	provider, err := buildEmbeddingProvider()
	if err != nil {
		a.close()
		return nil, err
	}
	if c, ok := provider.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}
	a.embedder = rag.NewLazyEmbedder(provider,
		rag.WithEmbedTimeout(viper.GetDuration("embedding.timeout")),
		rag.WithBatchSize(viper.GetInt("embedding.batch_size")),
	)

	a.generator, err = buildGenerator()
	if err != nil {
		a.close()
		return nil, err
	}

	chunker, err := rag.NewChunker(
		rag.WithChunkSize(viper.GetInt("rag.chunk_size")),
		rag.WithChunkOverlap(viper.GetInt("rag.chunk_overlap")),
	)
	if err != nil {
		a.close()
		return nil, err
	}

	ps, err := queue.New(viper.GetString("retire.amqp_url"))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create retire queue: %w", err)
	}
	a.closers = append(a.closers, ps.Close)

	dropCfg := rag.DefaultDropQueueConfig()
	dropCfg.MaxRetries = viper.GetInt("retire.max_retries")
	dropCfg.IdleTimeout = viper.GetDuration("retire.idle_timeout")
	a.drops, err = rag.NewDropQueue(ps.Publisher, ps.Subscriber, a.store, a.pointer, dropCfg)
	if err != nil {
		a.close()
		return nil, err
	}

	storeTimeout := viper.GetDuration("rag.store_timeout")
	a.pipeline = rag.NewPipeline(buildExtractor(), chunker, a.embedder, a.store, a.pointer, a.drops,
		rag.WithStoreTimeout(storeTimeout),
	)
	a.answerer = rag.NewAnswerer(a.embedder, a.store, a.pointer, a.generator,
		rag.WithTopK(viper.GetInt("rag.top_k")),
		rag.WithMaxContextChars(viper.GetInt("rag.max_context_chars")),
		rag.WithTemperature(viper.GetFloat64("generation.temperature")),
		rag.WithQueryTimeouts(storeTimeout, viper.GetDuration("generation.timeout")),
	)
	a.system = rag.NewSystemService(a.embedder, a.store, a.generator, a.pointer)

	return a, nil
}

// startDrops runs the retire queue until ctx is done and waits until it consumes.
func (a *app) startDrops(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- a.drops.Run(ctx)
	}()

	select {
	case <-a.drops.Running():
		return nil
	case err := <-errc:
		return fmt.Errorf("retire queue stopped: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *app) close() {
	if a.drops != nil {
		if err := a.drops.Close(); err != nil {
			log.Error(err, "Error closing retire queue")
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Error(err, "Error closing resource")
		}
	}
}

func buildStore(ctx context.Context, backend string) (rag.CollectionStore, func() error, error) {
	noop := func() error { return nil }

	switch backend {
	case "pgvector", "postgres":
		dsn := viper.GetString("database.url")
		if dsn == "" {
			return nil, nil, errors.New("database.url (DATABASE_URL) is required for the pgvector backend")
		}
		s, err := pgvector.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case "weaviate":
		wc, err := weaviateClient.NewClient(weaviateClient.Config{
			Host:   viper.GetString("weaviate.url"),
			Scheme: viper.GetString("weaviate.scheme"),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create weaviate client: %w", err)
		}
		return weaviate.NewStore(weaviate.NewSDK(wc)), noop, nil

	case "elasticsearch", "elastic":
		s, err := elastic.New(elastic.Config{
			URL:      viper.GetString("elasticsearch.url"),
			Username: viper.GetString("elasticsearch.username"),
			Password: viper.GetString("elasticsearch.password"),
		})
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil

	case "memory":
		return memory.NewStore(), noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func buildEmbeddingProvider() (rag.EmbeddingProvider, error) {
	model := viper.GetString("embedding.model")

	var provider rag.EmbeddingProvider
	switch name := viper.GetString("embedding.provider"); name {
	case "ollama":
		oc, err := ollama.NewClient(viper.GetString("embedding.url"), &http.Client{})
		if err != nil {
			return nil, err
		}
		provider = oc.Embedder(model)

	case "openai", "gemini":
		baseURL := viper.GetString("embedding.url")
		apiKey := viper.GetString("embedding.api_key")
		if name == "gemini" {
			if baseURL == "" {
				baseURL = openai.GeminiBaseURL
			}
			if apiKey == "" {
				apiKey = viper.GetString("generation.api_key")
			}
		}
		provider = openai.NewClient(openai.Config{APIKey: apiKey, BaseURL: baseURL, Model: model, Provider: name})

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", name)
	}

	if addr := viper.GetString("cache.valkey_addr"); addr != "" {
		kv, err := valkey.NewKV(valkey.Config{
			Addrs: strings.Split(addr, ","),
			TTL:   viper.GetDuration("cache.ttl"),
		})
		if err != nil {
			return nil, err
		}
		log.Info("Embedding cache enabled", "addr", addr)
		provider = valkey.NewCachedProvider(provider, kv)
	}
	return provider, nil
}

// buildGenerator returns nil without error when the credential is missing.
func buildGenerator() (rag.Generator, error) {
	model := viper.GetString("generation.model")
	baseURL := viper.GetString("generation.url")
	apiKey := viper.GetString("generation.api_key")

	switch name := viper.GetString("generation.provider"); name {
	case "gemini", "openai":
		if apiKey == "" {
			log.Error(rag.ErrGeneratorUnconfigured, "Generation credential GOOGLE_API_KEY is not set, queries will fail", "provider", name)
			return nil, nil
		}
		if name == "gemini" && baseURL == "" {
			baseURL = openai.GeminiBaseURL
		}
		return openai.NewClient(openai.Config{APIKey: apiKey, BaseURL: baseURL, Model: model, Provider: name}), nil

	case "ollama":
		oc, err := ollama.NewClient(baseURL, &http.Client{})
		if err != nil {
			return nil, err
		}
		return oc.Generator(model), nil

	default:
		return nil, fmt.Errorf("unknown generation provider %q", name)
	}
}

func buildExtractor() rag.TextExtractor {
	if url := viper.GetString("extract.unstructured_url"); url != "" {
		return extract.New(unstructured.NewUnstructuredService(url, &http.Client{}))
	}
	return extract.New(nil)
}

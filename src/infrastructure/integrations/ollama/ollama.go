package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
	"github.com/vibeee34/chatbot-gemini/src/metrics"
)

const (
	DefaultURL = "http://localhost:11434"
)

// Client represents an Ollama API client
type Client struct {
	api *api.Client
}

// NewClient creates a new Ollama API client
func NewClient(baseURL string, c *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	// the api client appends /api itself
	u, err := url.Parse(strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/api"))
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}
	if c == nil {
		c = http.DefaultClient
	}

	return &Client{
		api: api.NewClient(u, c),
	}, nil
}

// Ping checks that the Ollama server answers
func (c *Client) Ping(ctx context.Context) error {
	return c.api.Heartbeat(ctx)
}

// Embedder produces embeddings with one Ollama model.
type Embedder struct {
	client *Client
	model  string
}

func (c *Client) Embedder(model string) *Embedder {
	return &Embedder{client: c, model: model}
}

func (e *Embedder) ModelName() string {
	return e.model
}

// Embed generates one embedding vector per input text
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	resp, err := e.client.api.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: texts,
	})
	metrics.ObserveCall("ollama", "embed", start, err)
	if err != nil {
		return nil, fmt.Errorf("ollama embed with %s: %w", e.model, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: ollama returned %d embeddings for %d texts", rag.ErrVectorCountMismatch, len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

// Generator completes prompts with one Ollama model.
type Generator struct {
	client *Client
	model  string
}

func (c *Client) Generator(model string) *Generator {
	return &Generator{client: c, model: model}
}

func (g *Generator) ModelName() string {
	return g.model
}

func (g *Generator) Ping(ctx context.Context) error {
	return g.client.Ping(ctx)
}

// Generate performs model generation with the given prompt
func (g *Generator) Generate(ctx context.Context, prompt string, opts rag.GenerateOptions) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]interface{}{
			"temperature": opts.Temperature,
		},
	}

	var sb strings.Builder
	start := time.Now()
	err := g.client.api.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	metrics.ObserveCall("ollama", "generate", start, err)
	if err != nil {
		return "", fmt.Errorf("ollama generate with %s: %w", g.model, err)
	}

	return sb.String(), nil
}

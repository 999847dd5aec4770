// Package rag holds the single-document retrieval-augmented generation core:
// chunking, the embedding capability, collection lifecycle and answering.
package rag

import (
	"context"
)

const (
	// CollectionPrefix is prepended to the hex identifier of every collection the pipeline creates.
	CollectionPrefix = "documents_"

	DefaultTopK            = 5
	DefaultMaxContextChars = 8000
	DefaultTemperature     = 0.1

	// ContextDelimiter separates retrieved chunks inside the generation prompt.
	ContextDelimiter = "\n---\n"

	// NoRelevantContentAnswer is returned without a generation call when retrieval finds nothing.
	NoRelevantContentAnswer = "No relevant content found in the uploaded document."
)

// Chunk is one retrievable passage of a document.
type Chunk struct {
	Position int // the index of the chunk in the document
	Content  string
}

// Collection is a handle to a named vector index holding one document.
type Collection struct {
	Name string
}

// Match is a chunk returned by a similarity query.
type Match struct {
	Position int
	Content  string
	Score    float64 // higher is more similar
}

// Upload is one document submitted for ingestion.
type Upload struct {
	Filename string
	Data     []byte
	Progress ProgressFunc
}

// ProgressFunc reports how many chunks have been embedded so far.
type ProgressFunc func(done, total int)

// IngestResult describes the collection produced by a successful ingestion.
type IngestResult struct {
	Filename   string
	Collection string
	Chunks     int
	Dimension  int
	Retired    string // previous active collection, empty on first ingestion
}

// Answer is the result of a query against the active collection.
type Answer struct {
	Text       string
	Collection string
	Matches    []Match
	Prompt     string // empty when no generation call was made
}

// TextExtractor turns raw uploaded bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, filename string, data []byte) (string, error)
}

// GenerateOptions tunes a single generation call.
type GenerateOptions struct {
	Temperature float64
}

// Generator is the black-box text completion service.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	ModelName() string
}

// Pinger is implemented by collaborators that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

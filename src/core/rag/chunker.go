package rag

import (
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order, coarsest boundary first.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunker splits document text into overlapping passages measured in runes.
type Chunker struct {
	size       int
	overlap    int
	separators []string
}

type ChunkerOption func(*Chunker)

func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		c.size = size
	}
}

func WithChunkOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) {
		c.overlap = overlap
	}
}

func WithSeparators(separators ...string) ChunkerOption {
	return func(c *Chunker) {
		c.separators = separators
	}
}

// NewChunker returns a chunker with 1000/200 defaults. It fails with
// ErrInvalidChunking unless 0 <= overlap < size.
func NewChunker(opts ...ChunkerOption) (*Chunker, error) {
	c := &Chunker{
		size:       DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.size <= 0 || c.overlap < 0 || c.overlap >= c.size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidChunking, c.size, c.overlap)
	}
	if len(c.separators) == 0 {
		c.separators = DefaultSeparators
	}
	return c, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Split splits text. Whitespace-only input is ErrEmptyDocument.
func (c *Chunker) Split(text string) (Chunks, error) {
	if strings.TrimSpace(text) == "" {
		return Chunks{}, ErrEmptyDocument
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.size),
		textsplitter.WithChunkOverlap(c.overlap),
		textsplitter.WithSeparators(c.separators),
		textsplitter.WithLenFunc(utf8.RuneCountInString),
	)

	parts, err := splitter.SplitText(text)
	if err != nil {
		return Chunks{}, fmt.Errorf("split text: %w", err)
	}

	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		for _, t := range c.fit(p) {
			if strings.TrimSpace(t) == "" {
				continue
			}
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return Chunks{}, ErrEmptyDocument
	}
	return Chunks{texts: texts}, nil
}

// fit re-splits a chunk the splitter's merge step left over size. Pieces are
// cut at the coarsest separator the chunk contains and packed greedily. A
// chunk with no separator left stays whole unless "" allows a hard cut.
func (c *Chunker) fit(text string) []string {
	if utf8.RuneCountInString(text) <= c.size {
		return []string{text}
	}

	for _, sep := range c.separators {
		if sep == "" {
			return hardCut(text, c.size)
		}
		if !strings.Contains(text, sep) {
			continue
		}

		var out []string
		cur := ""
		for i, piece := range strings.Split(text, sep) {
			if i == 0 {
				cur = piece
				continue
			}
			if utf8.RuneCountInString(cur)+utf8.RuneCountInString(sep)+utf8.RuneCountInString(piece) <= c.size {
				cur += sep + piece
				continue
			}
			out = append(out, c.fit(cur)...)
			cur = piece
		}
		return append(out, c.fit(cur)...)
	}
	return []string{text}
}

func hardCut(text string, size int) []string {
	r := []rune(text)
	out := make([]string, 0, len(r)/size+1)
	for len(r) > size {
		out = append(out, string(r[:size]))
		r = r[size:]
	}
	return append(out, string(r))
}

// Chunks is the finite, restartable result of a split.
type Chunks struct {
	texts []string
}

// All yields the chunk texts in document order. It may be ranged over any number of times.
func (c Chunks) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, t := range c.texts {
			if !yield(t) {
				return
			}
		}
	}
}

// Positioned yields each chunk with its position in the document.
func (c Chunks) Positioned() iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		for i, t := range c.texts {
			if !yield(i, t) {
				return
			}
		}
	}
}

func (c Chunks) Len() int { return len(c.texts) }

// Texts returns a copy of the chunk texts.
func (c Chunks) Texts() []string {
	out := make([]string, len(c.texts))
	copy(out, c.texts)
	return out
}

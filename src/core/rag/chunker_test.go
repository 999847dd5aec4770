package rag_test

import (
	"fmt"
	"math/rand"
	"slices"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
)

// greekText repeats a short word list until it is exactly n characters long.
func greekText(n int) string {
	words := []string{"Alpha", "Beta", "Gamma", "Delta", "Epsilon", "Zeta", "Eta", "Theta"}
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(words[i%len(words)])
	}
	return b.String()[:n]
}

func TestNewChunker(t *testing.T) {
	tests := []struct {
		name    string
		opts    []rag.ChunkerOption
		wantErr bool
	}{
		{name: "defaults"},
		{name: "custom", opts: []rag.ChunkerOption{rag.WithChunkSize(200), rag.WithChunkOverlap(0)}},
		{name: "overlap equals size", opts: []rag.ChunkerOption{rag.WithChunkSize(100), rag.WithChunkOverlap(100)}, wantErr: true},
		{name: "overlap above size", opts: []rag.ChunkerOption{rag.WithChunkSize(100), rag.WithChunkOverlap(150)}, wantErr: true},
		{name: "zero size", opts: []rag.ChunkerOption{rag.WithChunkSize(0), rag.WithChunkOverlap(0)}, wantErr: true},
		{name: "negative overlap", opts: []rag.ChunkerOption{rag.WithChunkOverlap(-1)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := rag.NewChunker(tt.opts...)
			if tt.wantErr {
				assert.ErrorIs(t, err, rag.ErrInvalidChunking)
				return
			}
			require.NoError(t, err)
			assert.Less(t, c.Overlap(), c.Size())
		})
	}
}

func TestChunker_DefaultsSplitFifteenHundredCharsInTwo(t *testing.T) {
	c, err := rag.NewChunker()
	require.NoError(t, err)
	assert.Equal(t, 1000, c.Size())
	assert.Equal(t, 200, c.Overlap())

	text := greekText(1500)
	require.Len(t, text, 1500)

	chunks, err := c.Split(text)
	require.NoError(t, err)
	assert.Equal(t, 2, chunks.Len())

	for chunk := range chunks.All() {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 1000)
		assert.Contains(t, text, chunk)
	}
}

func TestChunker_EmptyDocument(t *testing.T) {
	c, err := rag.NewChunker()
	require.NoError(t, err)

	for _, text := range []string{"", " ", "\n\n\t  \r\n"} {
		_, err := c.Split(text)
		assert.ErrorIs(t, err, rag.ErrEmptyDocument, "input %q", text)
	}
}

func TestChunker_CoversInputWithoutGaps(t *testing.T) {
	words := make([]string, 250)
	for i := range words {
		words[i] = fmt.Sprintf("w%04d", i)
	}
	text := strings.Join(words, " ")

	tests := []struct {
		size    int
		overlap int
	}{
		{size: 1000, overlap: 200},
		{size: 300, overlap: 50},
		{size: 120, overlap: 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.size, tt.overlap), func(t *testing.T) {
			c, err := rag.NewChunker(rag.WithChunkSize(tt.size), rag.WithChunkOverlap(tt.overlap))
			require.NoError(t, err)

			chunks, err := c.Split(text)
			require.NoError(t, err)
			texts := slices.Collect(chunks.All())
			require.NotEmpty(t, texts)

			assert.True(t, strings.HasPrefix(text, texts[0]))
			assert.True(t, strings.HasSuffix(text, texts[len(texts)-1]))

			prevEnd := 0
			for i, chunk := range texts {
				assert.LessOrEqual(t, utf8.RuneCountInString(chunk), tt.size)

				start := strings.Index(text, chunk)
				require.GreaterOrEqual(t, start, 0, "chunk %d is not a substring", i)
				// the next chunk starts no later than one separator past the previous end
				assert.LessOrEqual(t, start, prevEnd+1, "gap before chunk %d", i)
				if i > 0 && tt.overlap > 0 {
					assert.Less(t, start, prevEnd, "chunk %d does not overlap its predecessor", i)
				}
				prevEnd = start + len(chunk)
			}
			assert.Equal(t, len(text), prevEnd)
		})
	}
}

func TestChunker_MeasuresRunes(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("ééé ", 300))

	c, err := rag.NewChunker()
	require.NoError(t, err)
	chunks, err := c.Split(text)
	require.NoError(t, err)

	first := slices.Collect(chunks.All())[0]
	assert.LessOrEqual(t, utf8.RuneCountInString(first), 1000)
	assert.Greater(t, len(first), 1000)
}

func TestChunker_IndivisibleRunMayExceedSize(t *testing.T) {
	long := strings.Repeat("x", 1200)

	c, err := rag.NewChunker(rag.WithSeparators(" "))
	require.NoError(t, err)
	chunks, err := c.Split("short " + long)
	require.NoError(t, err)

	assert.Equal(t, []string{"short", long}, chunks.Texts())
}

func TestChunker_HardCutWhenNoBoundary(t *testing.T) {
	c, err := rag.NewChunker(rag.WithChunkSize(100), rag.WithChunkOverlap(10))
	require.NoError(t, err)

	chunks, err := c.Split(strings.Repeat("y", 450))
	require.NoError(t, err)
	for chunk := range chunks.All() {
		assert.LessOrEqual(t, len(chunk), 100)
	}
}

func TestChunks_Restartable(t *testing.T) {
	c, err := rag.NewChunker(rag.WithChunkSize(50), rag.WithChunkOverlap(10))
	require.NoError(t, err)
	chunks, err := c.Split(greekText(400))
	require.NoError(t, err)

	first := slices.Collect(chunks.All())
	second := slices.Collect(chunks.All())
	assert.Equal(t, first, second)
	assert.Len(t, first, chunks.Len())

	for i, text := range chunks.Positioned() {
		assert.Equal(t, first[i], text)
	}
}

// mixedText joins random lowercase words with a mix of word, sentence, line
// and paragraph breaks.
func mixedText(rng *rand.Rand, words int) string {
	breaks := []string{" ", " ", " ", "\n", "\n\n", ". "}
	var b strings.Builder
	for i := 0; i < words; i++ {
		if i > 0 {
			b.WriteString(breaks[rng.Intn(len(breaks))])
		}
		n := 1 + rng.Intn(12)
		for j := 0; j < n; j++ {
			b.WriteByte(byte('a' + rng.Intn(26)))
		}
	}
	return b.String()
}

func TestChunker_NeverExceedsSizeOnMixedBreaks(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 200; trial++ {
		size := 20 + rng.Intn(200)
		overlap := rng.Intn(size / 2)
		text := mixedText(rng, 40+rng.Intn(200))

		c, err := rag.NewChunker(rag.WithChunkSize(size), rag.WithChunkOverlap(overlap))
		require.NoError(t, err)
		chunks, err := c.Split(text)
		require.NoError(t, err)

		for i, chunk := range chunks.Texts() {
			require.LessOrEqual(t, utf8.RuneCountInString(chunk), size,
				"trial %d size=%d overlap=%d chunk %d: %q", trial, size, overlap, i, chunk)
			require.Contains(t, text, chunk)
		}
	}
}

func TestChunker_ResplitsOversizedMerge(t *testing.T) {
	text := strings.Repeat("bx\n\nnb ogpquwteoi. otaiyojzwdbe\nk. xopaygpfya\nnj xyx\nkdkhjhhj ", 12)

	for _, tt := range []struct{ size, overlap int }{{60, 15}, {59, 15}, {50, 10}} {
		t.Run(fmt.Sprintf("%d/%d", tt.size, tt.overlap), func(t *testing.T) {
			c, err := rag.NewChunker(rag.WithChunkSize(tt.size), rag.WithChunkOverlap(tt.overlap))
			require.NoError(t, err)
			chunks, err := c.Split(text)
			require.NoError(t, err)
			for chunk := range chunks.All() {
				assert.LessOrEqual(t, utf8.RuneCountInString(chunk), tt.size, "%q", chunk)
			}
		})
	}
}

func TestChunker_UnbreakableWordKeptWhole(t *testing.T) {
	long := strings.Repeat("z", 80)

	c, err := rag.NewChunker(rag.WithChunkSize(30), rag.WithChunkOverlap(5), rag.WithSeparators("\n\n", "\n", " "))
	require.NoError(t, err)
	chunks, err := c.Split("one two\n" + long + "\nthree")
	require.NoError(t, err)

	assert.Contains(t, chunks.Texts(), long)
	for chunk := range chunks.All() {
		if chunk != long {
			assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 30)
		}
	}
}

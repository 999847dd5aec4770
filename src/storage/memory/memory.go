package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
)

// Store is an in-process collection store using brute-force cosine similarity.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	dimension int
	chunks    []rag.Chunk
	vectors   [][]float32
	norms     []float64
}

func NewStore() *Store {
	return &Store{collections: make(map[string]*collection)}
}

func (s *Store) Create(_ context.Context, name string) (rag.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return rag.Collection{}, fmt.Errorf("%w: %s", rag.ErrNameCollision, name)
	}
	s.collections[name] = &collection{}
	return rag.Collection{Name: name}, nil
}

func (s *Store) Add(_ context.Context, c rag.Collection, chunks []rag.Chunk, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[c.Name]
	if !ok {
		return fmt.Errorf("%w: collection %s does not exist", rag.ErrStorageUnavailable, c.Name)
	}

	dim, err := rag.CheckVectors(chunks, vectors, col.dimension)
	if err != nil {
		return fmt.Errorf("add to %s: %w", c.Name, err)
	}
	col.dimension = dim
	for i, v := range vectors {
		col.chunks = append(col.chunks, chunks[i])
		col.vectors = append(col.vectors, slices.Clone(v))
		col.norms = append(col.norms, norm(v))
	}
	return nil
}

func (s *Store) Query(_ context.Context, c rag.Collection, vector []float32, k int) ([]rag.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[c.Name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %s does not exist", rag.ErrStorageUnavailable, c.Name)
	}
	if len(col.vectors) == 0 {
		return []rag.Match{}, nil
	}
	if len(vector) != col.dimension {
		return nil, fmt.Errorf("%w: query has dimension %d, collection %s has %d", rag.ErrDimensionMismatch, len(vector), c.Name, col.dimension)
	}

	qn := norm(vector)
	matches := make([]rag.Match, len(col.vectors))
	for i, v := range col.vectors {
		matches[i] = rag.Match{
			Position: col.chunks[i].Position,
			Content:  col.chunks[i].Content,
			Score:    cosine(v, col.norms[i], vector, qn),
		}
	}
	slices.SortStableFunc(matches, func(a, b rag.Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return a.Position - b.Position
		}
	})

	if k > 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *Store) Drop(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, name)
	return nil
}

func (s *Store) Count(_ context.Context, c rag.Collection) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, ok := s.collections[c.Name]
	if !ok {
		return 0, fmt.Errorf("%w: collection %s does not exist", rag.ErrStorageUnavailable, c.Name)
	}
	return len(col.chunks), nil
}

func (s *Store) Ping(context.Context) error {
	return nil
}

// Exists reports whether name is currently stored.
func (s *Store) Exists(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok
}

// Names returns the stored collection names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for n := range s.collections {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func norm(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}

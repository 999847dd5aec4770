package weaviate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate/entities/models"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
)

const (
	propContent  = "content"
	propPosition = "position"

	batchSize = 100
)

var chunkProperties = []*models.Property{
	{Name: propContent, DataType: []string{"text"}},
	{Name: propPosition, DataType: []string{"int"}},
}

// Store maps collections onto Weaviate classes.
type Store struct {
	sdk *SDK
}

func NewStore(sdk *SDK) *Store {
	return &Store{sdk: sdk}
}

// ClassName converts a collection name into a Weaviate class name, which must
// start with an upper case letter.
func ClassName(collection string) string {
	if collection == "" {
		return collection
	}
	return strings.ToUpper(collection[:1]) + collection[1:]
}

func (s *Store) Create(ctx context.Context, name string) (rag.Collection, error) {
	err := s.sdk.CreateSchema(ctx, ClassName(name), chunkProperties)
	switch {
	case errors.Is(err, ErrClassExists):
		return rag.Collection{}, fmt.Errorf("%w: %s", rag.ErrNameCollision, name)
	case err != nil:
		return rag.Collection{}, unavailable(err)
	}
	return rag.Collection{Name: name}, nil
}

func (s *Store) Add(ctx context.Context, c rag.Collection, chunks []rag.Chunk, vectors [][]float32) error {
	class := ClassName(c.Name)
	dim, err := s.sdk.VectorDimension(ctx, class)
	if err != nil {
		return unavailable(err)
	}
	if _, err := rag.CheckVectors(chunks, vectors, dim); err != nil {
		return fmt.Errorf("add to %s: %w", c.Name, err)
	}

	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))
		objects := make([]VectorObject, 0, end-start)
		for i := start; i < end; i++ {
			objects = append(objects, VectorObject{
				Vector: vectors[i],
				Properties: map[string]interface{}{
					propContent:  chunks[i].Content,
					propPosition: chunks[i].Position,
				},
			})
		}
		if err := s.sdk.BatchAddVectors(ctx, class, objects); err != nil {
			if strings.Contains(err.Error(), "vector with length") {
				return fmt.Errorf("%w: %v", rag.ErrDimensionMismatch, err)
			}
			return unavailable(err)
		}
	}
	return nil
}

func (s *Store) Query(ctx context.Context, c rag.Collection, vector []float32, k int) ([]rag.Match, error) {
	results, err := s.sdk.QueryVectors(ctx, ClassName(c.Name), vector, QueryConfig{
		Fields: []string{propContent, propPosition},
		Limit:  k,
	})
	if err != nil {
		return nil, unavailable(err)
	}

	matches := make([]rag.Match, 0, len(results))
	for _, r := range results {
		content, _ := r.Properties[propContent].(string)
		position, _ := r.Properties[propPosition].(float64)
		matches = append(matches, rag.Match{
			Position: int(position),
			Content:  content,
			Score:    1 - r.Distance,
		})
	}
	return matches, nil
}

func (s *Store) Drop(ctx context.Context, name string) error {
	class := ClassName(name)
	exists, err := s.sdk.ClassExists(ctx, class)
	if err != nil {
		return unavailable(err)
	}
	if !exists {
		return nil
	}
	if err := s.sdk.DeleteSchema(ctx, class); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context, c rag.Collection) (int, error) {
	n, err := s.sdk.CountObjects(ctx, ClassName(c.Name))
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	live, err := s.sdk.Live(ctx)
	if err != nil {
		return unavailable(err)
	}
	if !live {
		return fmt.Errorf("%w: weaviate is not live", rag.ErrStorageUnavailable)
	}
	return nil
}

func unavailable(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", rag.ErrStorageUnavailable, err)
}

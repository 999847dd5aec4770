package rag

import (
	"context"
)

// CollectionStore is the vector index service. Every collection holds the
// chunks of exactly one document.
type CollectionStore interface {
	// Create allocates an empty collection. It fails with ErrStorageUnavailable
	// when the backend cannot be reached and ErrNameCollision when name exists.
	Create(ctx context.Context, name string) (Collection, error)
	// Add stores chunk/vector pairs. Vectors must share the collection's
	// dimension, otherwise ErrDimensionMismatch.
	Add(ctx context.Context, c Collection, chunks []Chunk, vectors [][]float32) error
	// Query returns up to k matches, most similar first. An empty collection yields no matches.
	Query(ctx context.Context, c Collection, vector []float32, k int) ([]Match, error)
	// Drop destroys a collection. Dropping an unknown name is not an error.
	Drop(ctx context.Context, name string) error
	Count(ctx context.Context, c Collection) (int, error)
	Ping(ctx context.Context) error
}

// CheckVectors validates a batch before it reaches a backend. dim is the
// collection's established dimension, or 0 if none yet.
func CheckVectors(chunks []Chunk, vectors [][]float32, dim int) (int, error) {
	if len(chunks) != len(vectors) {
		return 0, ErrVectorCountMismatch
	}
	for _, v := range vectors {
		if dim == 0 {
			dim = len(v)
		}
		if len(v) != dim || dim == 0 {
			return 0, ErrDimensionMismatch
		}
	}
	return dim, nil
}

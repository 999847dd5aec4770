package pgvector

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "duplicate table", err: &pgconn.PgError{Code: codeDuplicateTable, Message: "relation exists"}, want: rag.ErrNameCollision},
		{name: "dimension", err: &pgconn.PgError{Code: codeDataException, Message: "different vector dimensions 3 and 4"}, want: rag.ErrDimensionMismatch},
		{name: "missing table", err: &pgconn.PgError{Code: codeUndefinedTable}, want: rag.ErrStorageUnavailable},
		{name: "connection", err: errors.New("dial tcp: connection refused"), want: rag.ErrStorageUnavailable},
		{name: "timeout", err: context.DeadlineExceeded, want: context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify("op", tt.err), tt.want)
		})
	}
}

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(postgres.Open("host=localhost user=test dbname=test sslmode=disable"), &gorm.Config{
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return db
}

func TestStatements(t *testing.T) {
	db := dryRunDB(t)
	table := clause.Table{Name: "documents_0123"}

	drop := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return tx.Exec("DROP TABLE IF EXISTS ? CASCADE", table)
	})
	assert.Equal(t, `DROP TABLE IF EXISTS "documents_0123" CASCADE`, drop)

	count := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var n int64
		return tx.Table("documents_0123").Count(&n)
	})
	assert.Contains(t, count, `FROM "documents_0123"`)
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(dryRunDB(t))
	require.NoError(t, err)
	assert.NotEqual(t, s.snowflake.Generate(), s.snowflake.Generate())
}

// openTestStore connects to DATABASE_URL and skips the test when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Lifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	name := rag.NewCollectionName()
	t.Cleanup(func() { _ = s.Drop(context.Background(), name) })

	require.NoError(t, s.Ping(ctx))

	c, err := s.Create(ctx, name)
	require.NoError(t, err)

	_, err = s.Create(ctx, name)
	assert.ErrorIs(t, err, rag.ErrNameCollision)

	matches, err := s.Query(ctx, c, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)

	chunks := []rag.Chunk{{Position: 0, Content: "east"}, {Position: 1, Content: "north"}, {Position: 2, Content: "north-east"}}
	require.NoError(t, s.Add(ctx, c, chunks, [][]float32{{1, 0}, {0, 1}, {1, 1}}))

	n, err := s.Count(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	err = s.Add(ctx, c, []rag.Chunk{{Position: 3, Content: "up"}}, [][]float32{{0, 0, 1}})
	assert.ErrorIs(t, err, rag.ErrDimensionMismatch)

	matches, err = s.Query(ctx, c, []float32{1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "east", matches[0].Content)
	assert.Equal(t, 0, matches[0].Position)
	assert.Equal(t, "north-east", matches[1].Content)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	assert.LessOrEqual(t, matches[0].Score, 1.0+1e-6)

	require.NoError(t, s.Drop(ctx, c.Name))
	require.NoError(t, s.Drop(ctx, c.Name))
	require.NoError(t, s.Drop(ctx, rag.NewCollectionName()))

	_, err = s.Count(ctx, c)
	assert.ErrorIs(t, err, rag.ErrStorageUnavailable)
}

package pgvector

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
)

const (
	insertBatchSize = 100

	codeDuplicateTable = "42P07"
	codeUndefinedTable = "42P01"
	codeDataException  = "22000"
)

// Row is one stored chunk. Every collection is its own table.
type Row struct {
	ID        int64           `gorm:"primaryKey;autoIncrement:false"`
	Position  int             `gorm:"not null"`
	Content   string          `gorm:"not null"`
	Embedding pgvector.Vector `gorm:"type:vector;not null"`
}

// Store keeps collections as PostgreSQL tables with a pgvector column.
type Store struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

// Open connects to dsn and makes sure the vector extension is installed.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("%w: connect to postgres: %v", rag.ErrStorageUnavailable, err)
	}
	if err := db.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("%w: enable vector extension: %v", rag.ErrStorageUnavailable, err)
	}
	return NewStore(db)
}

func NewStore(db *gorm.DB) (*Store, error) {
	node, err := snowflake.NewNode(3) // Node number 3 for collection rows
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}
	return &Store{
		db:        db,
		snowflake: node,
	}, nil
}

func (s *Store) Create(ctx context.Context, name string) (rag.Collection, error) {
	db := s.db.WithContext(ctx)
	if db.Migrator().HasTable(name) {
		return rag.Collection{}, fmt.Errorf("%w: %s", rag.ErrNameCollision, name)
	}

	err := db.Exec(
		"CREATE TABLE ? (id BIGINT PRIMARY KEY, position INTEGER NOT NULL, content TEXT NOT NULL, embedding vector NOT NULL)",
		clause.Table{Name: name},
	).Error
	if err != nil {
		return rag.Collection{}, classify(fmt.Sprintf("create %s", name), err)
	}
	return rag.Collection{Name: name}, nil
}

func (s *Store) Add(ctx context.Context, c rag.Collection, chunks []rag.Chunk, vectors [][]float32) error {
	dim, err := s.dimension(ctx, c.Name)
	if err != nil {
		return err
	}
	if _, err := rag.CheckVectors(chunks, vectors, dim); err != nil {
		return fmt.Errorf("add to %s: %w", c.Name, err)
	}
	if len(chunks) == 0 {
		return nil
	}

	rows := make([]Row, len(chunks))
	for i, ch := range chunks {
		rows[i] = Row{
			ID:        s.snowflake.Generate().Int64(),
			Position:  ch.Position,
			Content:   ch.Content,
			Embedding: pgvector.NewVector(vectors[i]),
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Table(c.Name).CreateInBatches(&rows, insertBatchSize).Error
	})
	if err != nil {
		return classify(fmt.Sprintf("insert into %s", c.Name), err)
	}
	return nil
}

// dimension returns the dimension of the vectors already in the table, 0 if it is empty.
func (s *Store) dimension(ctx context.Context, name string) (int, error) {
	var dims []int
	err := s.db.WithContext(ctx).
		Raw("SELECT vector_dims(embedding) FROM ? LIMIT 1", clause.Table{Name: name}).
		Scan(&dims).Error
	if err != nil {
		return 0, classify(fmt.Sprintf("inspect %s", name), err)
	}
	if len(dims) == 0 {
		return 0, nil
	}
	return dims[0], nil
}

type scoredRow struct {
	Position int
	Content  string
	Score    float64
}

func (s *Store) Query(ctx context.Context, c rag.Collection, vector []float32, k int) ([]rag.Match, error) {
	v := pgvector.NewVector(vector)

	var rows []scoredRow
	err := s.db.WithContext(ctx).
		Raw("SELECT position, content, 1 - (embedding <=> ?) AS score FROM ? ORDER BY embedding <=> ? LIMIT ?",
			v, clause.Table{Name: c.Name}, v, k).
		Scan(&rows).Error
	if err != nil {
		return nil, classify(fmt.Sprintf("query %s", c.Name), err)
	}

	matches := make([]rag.Match, len(rows))
	for i, r := range rows {
		matches[i] = rag.Match{Position: r.Position, Content: r.Content, Score: r.Score}
	}
	return matches, nil
}

func (s *Store) Drop(ctx context.Context, name string) error {
	err := s.db.WithContext(ctx).Exec("DROP TABLE IF EXISTS ? CASCADE", clause.Table{Name: name}).Error
	if err != nil {
		return classify(fmt.Sprintf("drop %s", name), err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context, c rag.Collection) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Table(c.Name).Count(&n).Error; err != nil {
		return 0, classify(fmt.Sprintf("count %s", c.Name), err)
	}
	return int(n), nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", rag.ErrStorageUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", rag.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// classify maps PostgreSQL errors onto the rag error taxonomy.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeDuplicateTable:
			return fmt.Errorf("%s: %w: %s", op, rag.ErrNameCollision, pgErr.Message)
		case codeDataException:
			return fmt.Errorf("%s: %w: %s", op, rag.ErrDimensionMismatch, pgErr.Message)
		case codeUndefinedTable:
			return fmt.Errorf("%s: %w: collection does not exist", op, rag.ErrStorageUnavailable)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, rag.ErrStorageUnavailable, err)
}

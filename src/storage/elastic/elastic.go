package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
)

const (
	fieldContent   = "content"
	fieldPosition  = "position"
	fieldEmbedding = "embedding"

	bulkBatchSize = 200
)

// indexMapping leaves the vector dimension open so the first document sets it.
var indexMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			fieldContent:  map[string]interface{}{"type": "text"},
			fieldPosition: map[string]interface{}{"type": "integer"},
			fieldEmbedding: map[string]interface{}{
				"type":       "dense_vector",
				"index":      true,
				"similarity": "cosine",
			},
		},
	},
}

// Store keeps every collection in its own Elasticsearch index.
type Store struct {
	es *elasticsearch.Client
}

type Config struct {
	URL      string
	Username string
	Password string
}

func New(cfg Config) (*Store, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return NewStore(es), nil
}

func NewStore(es *elasticsearch.Client) *Store {
	return &Store{es: es}
}

func (s *Store) Create(ctx context.Context, name string) (rag.Collection, error) {
	body, err := json.Marshal(indexMapping)
	if err != nil {
		return rag.Collection{}, err
	}

	res, err := s.es.Indices.Create(name,
		s.es.Indices.Create.WithContext(ctx),
		s.es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return rag.Collection{}, unavailable("create index", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		e := decodeError(res)
		if e.Type == "resource_already_exists_exception" {
			return rag.Collection{}, fmt.Errorf("%w: %s", rag.ErrNameCollision, name)
		}
		return rag.Collection{}, fmt.Errorf("%w: create index %s: %s", rag.ErrStorageUnavailable, name, e)
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

	for start := 0; start < len(chunks); start += bulkBatchSize {
		end := min(start+bulkBatchSize, len(chunks))
		if err := s.bulk(ctx, c.Name, chunks[start:end], vectors[start:end]); err != nil {
			return err
		}
	}
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int        `json:"status"`
		Error  errorCause `json:"error"`
	} `json:"items"`
}

func (s *Store) bulk(ctx context.Context, index string, chunks []rag.Chunk, vectors [][]float32) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, ch := range chunks {
		if err := enc.Encode(map[string]interface{}{"index": map[string]interface{}{"_index": index}}); err != nil {
			return err
		}
		doc := map[string]interface{}{
			fieldContent:   ch.Content,
			fieldPosition:  ch.Position,
			fieldEmbedding: vectors[i],
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	res, err := s.es.Bulk(&buf,
		s.es.Bulk.WithContext(ctx),
		s.es.Bulk.WithRefresh("true"),
	)
	if err != nil {
		return unavailable("bulk index", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: bulk index %s: %s", rag.ErrStorageUnavailable, index, decodeError(res))
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("%w: decode bulk response: %v", rag.ErrStorageUnavailable, err)
	}
	if !br.Errors {
		return nil
	}
	for _, item := range br.Items {
		for _, result := range item {
			if result.Error.Type == "" {
				continue
			}
			if strings.Contains(result.Error.Reason, "dimension") || strings.Contains(result.Error.Reason, "dims") {
				return fmt.Errorf("%w: %s", rag.ErrDimensionMismatch, result.Error)
			}
			return fmt.Errorf("%w: bulk index %s: %s", rag.ErrStorageUnavailable, index, result.Error)
		}
	}
	return fmt.Errorf("%w: bulk index %s reported errors", rag.ErrStorageUnavailable, index)
}

type mappingResponse map[string]struct {
	Mappings struct {
		Properties map[string]struct {
			Dims int `json:"dims"`
		} `json:"properties"`
	} `json:"mappings"`
}

// dimension returns the dimension fixed by the first indexed vector, 0 before that.
func (s *Store) dimension(ctx context.Context, index string) (int, error) {
	res, err := s.es.Indices.GetMapping(
		s.es.Indices.GetMapping.WithContext(ctx),
		s.es.Indices.GetMapping.WithIndex(index),
	)
	if err != nil {
		return 0, unavailable("get mapping", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("%w: get mapping %s: %s", rag.ErrStorageUnavailable, index, decodeError(res))
	}

	var mr mappingResponse
	if err := json.NewDecoder(res.Body).Decode(&mr); err != nil {
		return 0, fmt.Errorf("%w: decode mapping: %v", rag.ErrStorageUnavailable, err)
	}
	return mr[index].Mappings.Properties[fieldEmbedding].Dims, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64 `json:"_score"`
			Source struct {
				Content  string `json:"content"`
				Position int    `json:"position"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (s *Store) Query(ctx context.Context, c rag.Collection, vector []float32, k int) ([]rag.Match, error) {
	dim, err := s.dimension(ctx, c.Name)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return []rag.Match{}, nil
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: query has dimension %d, index %s has %d", rag.ErrDimensionMismatch, len(vector), c.Name, dim)
	}

	body, err := json.Marshal(map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          fieldEmbedding,
			"query_vector":   vector,
			"k":              k,
			"num_candidates": max(k*10, 100),
		},
		"_source": []string{fieldContent, fieldPosition},
		"size":    k,
	})
	if err != nil {
		return nil, err
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(c.Name),
		s.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, unavailable("search", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("%w: search %s: %s", rag.ErrStorageUnavailable, c.Name, decodeError(res))
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", rag.ErrStorageUnavailable, err)
	}

	matches := make([]rag.Match, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		matches = append(matches, rag.Match{
			Position: h.Source.Position,
			Content:  h.Source.Content,
			// cosine similarity is reported as (1 + cos) / 2
			Score: 2*h.Score - 1,
		})
	}
	return matches, nil
}

func (s *Store) Drop(ctx context.Context, name string) error {
	res, err := s.es.Indices.Delete([]string{name},
		s.es.Indices.Delete.WithContext(ctx),
		s.es.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return unavailable("delete index", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("%w: delete index %s: %s", rag.ErrStorageUnavailable, name, decodeError(res))
	}
	return nil
}

func (s *Store) Count(ctx context.Context, c rag.Collection) (int, error) {
	res, err := s.es.Count(
		s.es.Count.WithContext(ctx),
		s.es.Count.WithIndex(c.Name),
	)
	if err != nil {
		return 0, unavailable("count", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("%w: count %s: %s", rag.ErrStorageUnavailable, c.Name, decodeError(res))
	}

	var cr struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
		return 0, fmt.Errorf("%w: decode count: %v", rag.ErrStorageUnavailable, err)
	}
	return cr.Count, nil
}

func (s *Store) Ping(ctx context.Context) error {
	res, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	if err != nil {
		return unavailable("ping", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: ping returned %s", rag.ErrStorageUnavailable, res.Status())
	}
	return nil
}

type errorCause struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func (e errorCause) String() string {
	if e.Type == "" {
		return e.Reason
	}
	return e.Type + ": " + e.Reason
}

func decodeError(res *esapi.Response) errorCause {
	var body struct {
		Error errorCause `json:"error"`
	}
	data, _ := io.ReadAll(res.Body)
	if err := json.Unmarshal(data, &body); err != nil || body.Error.Type == "" {
		return errorCause{Reason: fmt.Sprintf("%s %s", res.Status(), strings.TrimSpace(string(data)))}
	}
	return body.Error
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", rag.ErrStorageUnavailable, op, err)
}

package weaviate

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	weaviateClient "github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
)

func TestClassName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "documents_9f86d081884c7d659a2feaa0c55ad015", want: "Documents_9f86d081884c7d659a2feaa0c55ad015"},
		{in: "Documents_x", want: "Documents_x"},
		{in: "", want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassName(tt.in))
	}
}

func TestUnavailable(t *testing.T) {
	assert.ErrorIs(t, unavailable(errors.New("connection refused")), rag.ErrStorageUnavailable)
	assert.ErrorIs(t, unavailable(context.DeadlineExceeded), context.DeadlineExceeded)
	assert.NotErrorIs(t, unavailable(context.DeadlineExceeded), rag.ErrStorageUnavailable)
}

func TestChunkProperties(t *testing.T) {
	names := make([]string, len(chunkProperties))
	for i, p := range chunkProperties {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"content", "position"}, names)
}

func TestGetObjects(t *testing.T) {
	result := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{
				"Documents_x": []interface{}{
					map[string]interface{}{"content": "alpha", "position": float64(2)},
					"garbage",
				},
			},
		},
	}

	objs := getObjects(result, "Documents_x")
	assert.Len(t, objs, 1)
	assert.Equal(t, "alpha", objs[0]["content"])
	assert.Nil(t, getObjects(result, "Documents_y"))
	assert.Nil(t, getObjects(nil, "Documents_x"))
}

func TestGraphQLError(t *testing.T) {
	assert.NoError(t, graphQLError(&models.GraphQLResponse{}))

	err := graphQLError(&models.GraphQLResponse{
		Errors: []*models.GraphQLError{{Message: "class not found"}},
	})
	assert.EqualError(t, err, "graphql: class not found")
}

type fakeObject struct {
	id         string
	vector     []float64
	properties map[string]interface{}
}

// fakeWeaviate serves the schema, batch, GraphQL and liveness endpoints the
// store uses, with an exact cosine search over stored objects.
type fakeWeaviate struct {
	mu      sync.Mutex
	classes map[string][]fakeObject
}

var (
	reGetClass       = regexp.MustCompile(`Get\s*\{\s*(\w+)`)
	reAggregateClass = regexp.MustCompile(`Aggregate\s*\{\s*(\w+)`)
	reVector         = regexp.MustCompile(`vector:\s*\[([^\]]*)\]`)
	reLimit          = regexp.MustCompile(`limit:\s*(\d+)`)
)

func newFakeWeaviate(t *testing.T) (*Store, *fakeWeaviate) {
	t.Helper()
	f := &fakeWeaviate{classes: map[string][]fakeObject{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	client, err := weaviateClient.NewClient(weaviateClient.Config{Host: u.Host, Scheme: u.Scheme})
	require.NoError(t, err)
	return NewStore(NewSDK(client)), f
}

func (f *fakeWeaviate) hasClass(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.classes[name]
	return ok
}

func (f *fakeWeaviate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/v1/.well-known/live" || r.URL.Path == "/v1/.well-known/ready":
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/v1/meta":
		writeJSON(w, http.StatusOK, map[string]interface{}{"version": "1.28.2"})
	case r.URL.Path == "/v1/schema" && r.Method == http.MethodGet:
		classes := make([]map[string]interface{}, 0, len(f.classes))
		for name := range f.classes {
			classes = append(classes, map[string]interface{}{"class": name})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"classes": classes})
	case r.URL.Path == "/v1/schema" && r.Method == http.MethodPost:
		var class models.Class
		if err := json.NewDecoder(r.Body).Decode(&class); err != nil {
			writeJSON(w, http.StatusBadRequest, nil)
			return
		}
		if _, ok := f.classes[class.Class]; ok {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"error": []map[string]string{{"message": "class name " + class.Class + " already exists"}},
			})
			return
		}
		f.classes[class.Class] = nil
		writeJSON(w, http.StatusOK, class)
	case strings.HasPrefix(r.URL.Path, "/v1/schema/") && r.Method == http.MethodDelete:
		delete(f.classes, strings.TrimPrefix(r.URL.Path, "/v1/schema/"))
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/v1/batch/objects":
		f.batch(w, r)
	case r.URL.Path == "/v1/graphql":
		f.graphql(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeWeaviate) batch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Objects []struct {
			Class      string                 `json:"class"`
			Properties map[string]interface{} `json:"properties"`
			Vector     []float64              `json:"vector"`
		} `json:"objects"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, nil)
		return
	}

	resp := make([]map[string]interface{}, 0, len(body.Objects))
	for _, o := range body.Objects {
		id := uuid.NewString()
		f.classes[o.Class] = append(f.classes[o.Class], fakeObject{id: id, vector: o.Vector, properties: o.Properties})
		resp = append(resp, map[string]interface{}{"class": o.Class, "id": id, "result": map[string]interface{}{}})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *fakeWeaviate) graphql(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, nil)
		return
	}
	q := body.Query

	if m := reAggregateClass.FindStringSubmatch(q); m != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{
			"Aggregate": map[string]interface{}{
				m[1]: []interface{}{map[string]interface{}{"meta": map[string]interface{}{"count": len(f.classes[m[1]])}}},
			},
		}})
		return
	}

	m := reGetClass.FindStringSubmatch(q)
	if m == nil {
		writeJSON(w, http.StatusBadRequest, nil)
		return
	}
	objects := f.classes[m[1]]
	limit := len(objects)
	if lm := reLimit.FindStringSubmatch(q); lm != nil {
		limit, _ = strconv.Atoi(lm[1])
	}

	var out []interface{}
	if vm := reVector.FindStringSubmatch(q); vm != nil {
		query := parseVector(vm[1])
		type scored struct {
			obj      fakeObject
			distance float64
		}
		hits := make([]scored, len(objects))
		for i, o := range objects {
			hits[i] = scored{obj: o, distance: 1 - cosine(query, o.vector)}
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })
		for _, h := range hits[:min(limit, len(hits))] {
			row := map[string]interface{}{"_additional": map[string]interface{}{"id": h.obj.id, "distance": h.distance}}
			for k, v := range h.obj.properties {
				row[k] = v
			}
			out = append(out, row)
		}
	} else {
		for _, o := range objects[:min(limit, len(objects))] {
			out = append(out, map[string]interface{}{"_additional": map[string]interface{}{"vector": o.vector}})
		}
	}

	if out == nil {
		out = []interface{}{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": map[string]interface{}{
		"Get": map[string]interface{}{m[1]: out},
	}})
}

func parseVector(s string) []float64 {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	v := make([]float64, 0, len(fields))
	for _, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err == nil {
			v = append(v, x)
		}
	}
	return v
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range min(len(a), len(b)) {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func TestStore_Lifecycle(t *testing.T) {
	s, fake := newFakeWeaviate(t)
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))

	c, err := s.Create(ctx, "documents_abc")
	require.NoError(t, err)
	assert.True(t, fake.hasClass("Documents_abc"))

	_, err = s.Create(ctx, "documents_abc")
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
	assert.Equal(t, 2, matches[1].Position)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	require.NoError(t, s.Drop(ctx, c.Name))
	assert.False(t, fake.hasClass("Documents_abc"))
	require.NoError(t, s.Drop(ctx, c.Name))
	require.NoError(t, s.Drop(ctx, "documents_never_created"))
}

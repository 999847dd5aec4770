package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
	"github.com/vibeee34/chatbot-gemini/src/log"
	"github.com/vibeee34/chatbot-gemini/src/metrics"
)

// DefaultMaxUploadBytes caps the size of an uploaded document.
const DefaultMaxUploadBytes = 32 << 20

type Ingester interface {
	Ingest(ctx context.Context, up rag.Upload) (*rag.IngestResult, error)
}

type Answerer interface {
	Answer(ctx context.Context, query string) (*rag.Answer, error)
}

type Handler struct {
	ingester       Ingester
	answerer       Answerer
	sysService     rag.SystemService
	maxUploadBytes int64
}

func NewHandler(ingester Ingester, answerer Answerer, sysService rag.SystemService, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{
		ingester:       ingester,
		answerer:       answerer,
		sysService:     sysService,
		maxUploadBytes: maxUploadBytes,
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/upload-document", h.UploadDocument)
	r.POST("/query-rag", h.QueryRAG)

	// System routes
	r.GET("/health", h.CheckHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// NewRouter builds the engine with recovery, metrics and CORS in front of the routes.
// An origin of "*" allows every origin.
func NewRouter(h *Handler, corsOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), metrics.Middleware(), cors.New(corsConfig(corsOrigins)))
	h.RegisterRoutes(r)
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}

// Common error response structure
type ErrorResponse struct {
	Error string `json:"error"`
}

var (
	errNoFile = errors.New("no file uploaded")

	// messages shown to clients; detail stays in the logs
	errorMessages = []struct {
		err error
		msg string
	}{
		{errNoFile, "No file uploaded"},
		{rag.ErrEmptyDocument, "PDF contains no extractable text"},
		{rag.ErrNoExtractableText, "PDF contains no extractable text"},
		{rag.ErrNoActiveDocument, "No document uploaded yet"},
		{rag.ErrEmptyQuery, "Please send a query."},
		{rag.ErrUnsupportedDocument, "Unsupported document type"},
		{rag.ErrUnreadableDocument, "The document could not be read"},
		{rag.ErrDocumentTooLarge, "The document exceeds the upload size limit"},
		{rag.ErrEmbedderUnavailable, "Embeddings model failed to load on startup."},
		{rag.ErrGeneratorUnconfigured, "Error fetching answer from Gemini API."},
		{rag.ErrGeneratorUnavailable, "Error fetching answer from Gemini API."},
		{rag.ErrStorageUnavailable, "Vector storage is unavailable"},
		{rag.ErrServiceUnavailable, "An upstream service is unavailable"},
		{context.DeadlineExceeded, "An upstream service is unavailable"},
	}
)

func sendError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	kind := rag.Kind(err)
	if kind == rag.KindInput || errors.Is(err, errNoFile) {
		status = http.StatusBadRequest
	}

	msg := "Internal server error"
	for _, m := range errorMessages {
		if errors.Is(err, m.err) {
			msg = m.msg
			break
		}
	}

	if status >= http.StatusInternalServerError {
		log.Error(err, "request failed", "path", c.FullPath(), "kind", kind.String())
	}

	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg})
}

func sendJSON(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

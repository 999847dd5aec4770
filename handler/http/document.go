package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vibeee34/chatbot-gemini/src/core/rag"
)

type uploadResponse struct {
	Message    string `json:"message"`
	Collection string `json:"collection"`
	Chunks     int    `json:"chunks"`
}

// UploadDocument ingests the multipart field "file" and makes it the active document.
func (h *Handler) UploadDocument(c *gin.Context) {
	if c.Request.ContentLength > h.maxUploadBytes {
		sendError(c, fmt.Errorf("%w: limit %d bytes", rag.ErrDocumentTooLarge, h.maxUploadBytes))
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			sendError(c, fmt.Errorf("%w: limit %d bytes", rag.ErrDocumentTooLarge, tooLarge.Limit))
			return
		}
		sendError(c, errNoFile)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		sendError(c, fmt.Errorf("%w: %v", rag.ErrUnreadableDocument, err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		sendError(c, fmt.Errorf("%w: %v", rag.ErrUnreadableDocument, err))
		return
	}

	res, err := h.ingester.Ingest(c.Request.Context(), rag.Upload{
		Filename: fileHeader.Filename,
		Data:     data,
	})
	if err != nil {
		sendError(c, err)
		return
	}

	sendJSON(c, http.StatusOK, uploadResponse{
		Message:    fmt.Sprintf("Stored file '%s'.", res.Filename),
		Collection: res.Collection,
		Chunks:     res.Chunks,
	})
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Answer string `json:"answer"`
}

// QueryRAG answers {"query": ...} from the active document.
func (h *Handler) QueryRAG(c *gin.Context) {
	var req queryRequest
	// a missing or malformed body is treated as an empty query
	_ = c.ShouldBindJSON(&req)

	answer, err := h.answerer.Answer(c.Request.Context(), req.Query)
	if err != nil {
		sendError(c, err)
		return
	}

	sendJSON(c, http.StatusOK, queryResponse{Answer: answer.Text})
}

// CheckHealth reports the state of every collaborator, 503 when one is down.
func (h *Handler) CheckHealth(c *gin.Context) {
	status, err := h.sysService.CheckHealth(c.Request.Context())
	if err != nil {
		sendError(c, err)
		return
	}
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	sendJSON(c, code, status)
}

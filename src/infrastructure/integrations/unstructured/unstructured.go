package unstructured

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/vibeee34/chatbot-gemini/src/metrics"
)

type UnstructuredService struct {
	baseURL string
	client  *http.Client
}

type UnstructuredElement struct {
	Type      string   `json:"type"`
	Text      string   `json:"text"`
	ElementID string   `json:"element_id"`
	Metadata  Metadata `json:"metadata"`
}

type Metadata struct {
	Filename   string `json:"filename,omitempty"`
	Filetype   string `json:"filetype,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
}

func NewUnstructuredService(baseURL string, client *http.Client) *UnstructuredService {
	if client == nil {
		client = http.DefaultClient
	}
	return &UnstructuredService{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
}

// Partition sends the file to the general partition endpoint and returns its elements in document order.
func (s *UnstructuredService) Partition(ctx context.Context, filename string, content []byte) ([]UnstructuredElement, error) {
	var requestBody bytes.Buffer
	multipartWriter := multipart.NewWriter(&requestBody)

	fileWriter, err := multipartWriter.CreateFormFile("files", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err = io.Copy(fileWriter, bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to write file content: %w", err)
	}
	if err := multipartWriter.WriteField("output_format", "application/json"); err != nil {
		return nil, fmt.Errorf("failed to write output format: %w", err)
	}
	if err := multipartWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/general/v0/general", &requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", multipartWriter.FormDataContentType())

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		metrics.ObserveCall("unstructured", "partition", start, err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		metrics.ObserveCall("unstructured", "partition", start, err)
		return nil, err
	}

	var elements []UnstructuredElement
	err = json.NewDecoder(resp.Body).Decode(&elements)
	metrics.ObserveCall("unstructured", "partition", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return elements, nil
}

// Text joins the element texts with newlines.
func Text(elements []UnstructuredElement) string {
	var sb strings.Builder
	for _, el := range elements {
		if strings.TrimSpace(el.Text) == "" {
			continue
		}
		sb.WriteString(el.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// StatusError is a non-200 reply from the partition service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("conversion service error %d: %s", e.StatusCode, e.Body)
}

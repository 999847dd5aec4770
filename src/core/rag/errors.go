package rag

import (
	"context"
	"errors"
)

// Input errors are caused by the caller and are safe to report verbatim.
var (
	ErrEmptyDocument       = errors.New("document is empty")
	ErrNoExtractableText   = errors.New("document contains no extractable text")
	ErrUnsupportedDocument = errors.New("unsupported document type")
	ErrUnreadableDocument  = errors.New("document could not be read")
	ErrDocumentTooLarge    = errors.New("document exceeds the upload size limit")
	ErrEmptyQuery          = errors.New("query is empty")
	ErrNoActiveDocument    = errors.New("no document uploaded yet")
	ErrInvalidChunking     = errors.New("chunk overlap must be smaller than chunk size")
)

// Service errors. The caller may retry the whole operation.
var (
	ErrServiceUnavailable    = errors.New("service unavailable")
	ErrEmbedderUnavailable   = errors.New("embedding provider failed to initialize")
	ErrStorageUnavailable    = errors.New("vector storage unavailable")
	ErrGeneratorUnavailable  = errors.New("generation service unavailable")
	ErrGeneratorUnconfigured = errors.New("generation service credential is not configured")
)

// Data inconsistencies abort the operation and are never swallowed.
var (
	ErrDimensionMismatch   = errors.New("vector dimension mismatch")
	ErrNameCollision       = errors.New("collection name already exists")
	ErrVectorCountMismatch = errors.New("embedding count does not match chunk count")
)

// ErrorKind groups errors for reporting.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindInput
	KindUnavailable
	KindInconsistency
)

func (k ErrorKind) String() string {
	switch k {
	case KindInput:
		return "input_error"
	case KindUnavailable:
		return "service_unavailable"
	case KindInconsistency:
		return "data_inconsistency"
	default:
		return "internal_error"
	}
}

var (
	inputErrors = []error{
		ErrEmptyDocument, ErrNoExtractableText, ErrUnsupportedDocument, ErrUnreadableDocument,
		ErrDocumentTooLarge, ErrEmptyQuery, ErrNoActiveDocument, ErrInvalidChunking,
	}
	unavailableErrors = []error{
		ErrServiceUnavailable, ErrEmbedderUnavailable, ErrStorageUnavailable,
		ErrGeneratorUnavailable, ErrGeneratorUnconfigured, context.DeadlineExceeded,
	}
	inconsistencyErrors = []error{
		ErrDimensionMismatch, ErrNameCollision, ErrVectorCountMismatch,
	}
)

// Kind classifies err. Unknown errors are KindInternal.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindInternal
	}
	for _, target := range inputErrors {
		if errors.Is(err, target) {
			return KindInput
		}
	}
	for _, target := range inconsistencyErrors {
		if errors.Is(err, target) {
			return KindInconsistency
		}
	}
	for _, target := range unavailableErrors {
		if errors.Is(err, target) {
			return KindUnavailable
		}
	}
	return KindInternal
}

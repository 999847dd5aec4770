package rag

import (
	"context"
	"time"
)

type ComponentStatus string

const (
	StatusUp   ComponentStatus = "up"
	StatusDown ComponentStatus = "down"
)

type HealthStatus struct {
	Status     string `json:"status"`
	Collection string `json:"active_collection,omitempty"`
	Components struct {
		Embedder  ComponentStatus `json:"embedder"`
		Store     ComponentStatus `json:"store"`
		Generator ComponentStatus `json:"generator"`
	} `json:"components"`
}

type SystemService interface {
	CheckHealth(ctx context.Context) (*HealthStatus, error)
}

type systemService struct {
	embedder  Pinger
	store     Pinger
	generator Generator
	pointer   *ActivePointer
	timeout   time.Duration
}

// NewSystemService reports on the collaborators shared by the pipeline and the answerer.
// generator may be nil.
func NewSystemService(embedder Pinger, store Pinger, generator Generator, pointer *ActivePointer) SystemService {
	return &systemService{
		embedder:  embedder,
		store:     store,
		generator: generator,
		pointer:   pointer,
		timeout:   5 * time.Second,
	}
}

func (s *systemService) CheckHealth(ctx context.Context) (*HealthStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	status := &HealthStatus{Status: "healthy"}
	status.Components.Embedder = StatusDown
	status.Components.Store = StatusDown
	status.Components.Generator = StatusDown

	if s.embedder != nil && s.embedder.Ping(ctx) == nil {
		status.Components.Embedder = StatusUp
	}

	if s.store != nil && s.store.Ping(ctx) == nil {
		status.Components.Store = StatusUp
	}

	if s.generator != nil {
		if p, ok := s.generator.(Pinger); !ok || p.Ping(ctx) == nil {
			status.Components.Generator = StatusUp
		}
	}

	if name, ok := s.pointer.Current(); ok {
		status.Collection = name
	}

	if status.Components.Embedder == StatusDown ||
		status.Components.Store == StatusDown ||
		status.Components.Generator == StatusDown {
		status.Status = "unhealthy"
	}

	return status, nil
}

package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/vibeee34/chatbot-gemini/src/log"
	"github.com/vibeee34/chatbot-gemini/src/metrics"
)

// RetiredTopic carries the names of collections that are no longer active.
const RetiredTopic = "collections.retired"

// RetiredMessage is the payload published on RetiredTopic.
type RetiredMessage struct {
	Collection string `json:"collection"`
}

type DropQueueConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// IdleTimeout bounds how long a drop waits for in-flight queries on the collection.
	IdleTimeout time.Duration
	DropTimeout time.Duration
}

func DefaultDropQueueConfig() DropQueueConfig {
	return DropQueueConfig{
		MaxRetries:      5,
		InitialInterval: time.Second,
		MaxInterval:     time.Minute,
		IdleTimeout:     30 * time.Second,
		DropTimeout:     30 * time.Second,
	}
}

// DropQueue drops retired collections in the background. A drop waits until
// the collection has no leases and is retried with backoff when the store
// fails. A drop that still fails after all retries is logged and abandoned.
type DropQueue struct {
	publisher message.Publisher
	router    *message.Router
	store     CollectionStore
	pointer   *ActivePointer
	cfg       DropQueueConfig
	logger    watermill.LoggerAdapter
}

func NewDropQueue(
	publisher message.Publisher,
	subscriber message.Subscriber,
	store CollectionStore,
	pointer *ActivePointer,
	cfg DropQueueConfig,
) (*DropQueue, error) {
	logger := log.Watermill()

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("create drop router: %w", err)
	}

	q := &DropQueue{
		publisher: publisher,
		router:    router,
		store:     store,
		pointer:   pointer,
		cfg:       cfg,
		logger:    logger,
	}

	router.AddMiddleware(
		q.abandon,
		middleware.Retry{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.InitialInterval,
			MaxInterval:     cfg.MaxInterval,
			Multiplier:      2,
			OnRetryHook: func(retryNum int, delay time.Duration) {
				metrics.CollectionDropsTotal.WithLabelValues("retry").Inc()
			},
			Logger: logger,
		}.Middleware,
		middleware.Recoverer,
	)

	router.AddNoPublisherHandler(
		"collection_dropper",
		RetiredTopic,
		subscriber,
		q.handle,
	)

	return q, nil
}

// Run blocks until ctx is cancelled or Close is called.
func (q *DropQueue) Run(ctx context.Context) error {
	return q.router.Run(ctx)
}

// Running is closed once the router is consuming messages.
func (q *DropQueue) Running() chan struct{} {
	return q.router.Running()
}

func (q *DropQueue) Close() error {
	return q.router.Close()
}

// Retire schedules name to be dropped.
func (q *DropQueue) Retire(ctx context.Context, name string) error {
	payload, err := json.Marshal(RetiredMessage{Collection: name})
	if err != nil {
		return fmt.Errorf("marshal retired message: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := q.publisher.Publish(RetiredTopic, msg); err != nil {
		return fmt.Errorf("publish retired collection %s: %w", name, err)
	}
	log.Debug("collection retired", "collection", name)
	return nil
}

func (q *DropQueue) handle(msg *message.Message) error {
	var m RetiredMessage
	if err := json.Unmarshal(msg.Payload, &m); err != nil {
		// a malformed payload never becomes valid, drop it
		log.Error(err, "discarding malformed retired message", "uuid", msg.UUID)
		return nil
	}

	if current, ok := q.pointer.Current(); ok && current == m.Collection {
		log.Info("skipping drop of active collection", "collection", m.Collection)
		return nil
	}

	ctx := msg.Context()

	idleCtx, cancel := context.WithTimeout(ctx, q.cfg.IdleTimeout)
	err := q.pointer.WaitIdle(idleCtx, m.Collection)
	cancel()
	if err != nil {
		return fmt.Errorf("collection %s still in use: %w", m.Collection, err)
	}

	dropCtx, cancel := context.WithTimeout(ctx, q.cfg.DropTimeout)
	defer cancel()
	start := time.Now()
	err = q.store.Drop(dropCtx, m.Collection)
	metrics.ObserveCall("store", "drop", start, err)
	if err != nil {
		return fmt.Errorf("drop collection %s: %w", m.Collection, err)
	}

	metrics.CollectionDropsTotal.WithLabelValues("dropped").Inc()
	log.Info("retired collection dropped", "collection", m.Collection)
	return nil
}

// abandon acknowledges a message whose retries are exhausted so that it is
// not redelivered forever.
func (q *DropQueue) abandon(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		msgs, err := h(msg)
		if err != nil {
			metrics.CollectionDropsTotal.WithLabelValues("failed").Inc()
			log.Error(err, "giving up on retired collection drop", "uuid", msg.UUID)
			return nil, nil
		}
		return msgs, nil
	}
}

// Package queue provides the publisher/subscriber pair carrying retired collections.
package queue

import (
	"errors"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/vibeee34/chatbot-gemini/src/log"
)

// PubSub bundles a publisher and subscriber over the same transport.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	// Durable is true when messages survive a restart of this process.
	Durable bool

	closers []func() error
}

// New returns a durable AMQP queue for a non-empty url and an in-process
// channel otherwise.
func New(amqpURL string) (*PubSub, error) {
	logger := log.Watermill()
	if amqpURL == "" {
		return NewInProcess(logger), nil
	}

	publisher, err := amqp.NewPublisher(amqp.NewDurableQueueConfig(amqpURL), logger)
	if err != nil {
		return nil, err
	}

	subscriberConfig := amqp.NewDurableQueueConfig(amqpURL)
	subscriberConfig.Consume.NoRequeueOnNack = true
	subscriber, err := amqp.NewSubscriber(subscriberConfig, logger)
	if err != nil {
		_ = publisher.Close()
		return nil, err
	}

	return &PubSub{
		Publisher:  publisher,
		Subscriber: subscriber,
		Durable:    true,
		closers:    []func() error{publisher.Close, subscriber.Close},
	}, nil
}

// NewInProcess keeps messages in memory. Messages published before anyone
// subscribes, or still queued at shutdown, are lost.
func NewInProcess(logger watermill.LoggerAdapter) *PubSub {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, logger)
	return &PubSub{Publisher: ch, Subscriber: ch, closers: []func() error{ch.Close}}
}

func (p *PubSub) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

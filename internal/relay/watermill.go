package relay

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
)

// PubSubBus adapts a watermill publisher/subscriber pair to the Bus
// contract, keeping one live subscription per user.
type PubSubBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber

	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
}

var _ Bus = (*PubSubBus)(nil)

// NewChannelBus builds an in-process bus on watermill's GoChannel. It is the
// single-node default and the test double for the AMQP transport.
func NewChannelBus(logger watermill.LoggerAdapter) *PubSubBus {
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
	return newPubSubBus(ch, ch)
}

// NewAMQPBus connects both halves of a durable AMQP pub/sub. Queue names get
// a per-node suffix so each node drains only the channels it subscribed.
func NewAMQPBus(uri, nodeID string, logger watermill.LoggerAdapter) (*PubSubBus, error) {
	cfg := amqp.NewDurablePubSubConfig(uri,
		amqp.GenerateQueueNameTopicNameWithSuffix(nodeID))

	pub, err := amqp.NewPublisher(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("amqp publisher: %w", err)
	}
	sub, err := amqp.NewSubscriber(cfg, logger)
	if err != nil {
		pub.Close()
		return nil, fmt.Errorf("amqp subscriber: %w", err)
	}
	return newPubSubBus(pub, sub), nil
}

func newPubSubBus(pub message.Publisher, sub message.Subscriber) *PubSubBus {
	return &PubSubBus{
		publisher:  pub,
		subscriber: sub,
		cancels:    make(map[int64]context.CancelFunc),
	}
}

func (b *PubSubBus) Subscribe(ctx context.Context, userID int64, fn func(payload []byte)) error {
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	msgs, err := b.subscriber.Subscribe(subCtx, userTopic(userID))
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe user %d: %w", userID, err)
	}

	b.mu.Lock()
	if prev, ok := b.cancels[userID]; ok {
		prev()
	}
	b.cancels[userID] = cancel
	b.mu.Unlock()

	go func() {
		for msg := range msgs {
			fn(msg.Payload)
			msg.Ack()
		}
	}()
	return nil
}

func (b *PubSubBus) Unsubscribe(userID int64) {
	b.mu.Lock()
	cancel, ok := b.cancels[userID]
	if ok {
		delete(b.cancels, userID)
	}
	b.mu.Unlock()
	if ok {
		cancel()
	}
}

func (b *PubSubBus) Publish(_ context.Context, userID int64, payload []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.publisher.Publish(userTopic(userID), msg); err != nil {
		return fmt.Errorf("publish to user %d: %w", userID, err)
	}
	return nil
}

func (b *PubSubBus) Close() error {
	b.mu.Lock()
	for id, cancel := range b.cancels {
		cancel()
		delete(b.cancels, id)
	}
	b.mu.Unlock()

	if err := b.publisher.Close(); err != nil {
		return err
	}
	return b.subscriber.Close()
}

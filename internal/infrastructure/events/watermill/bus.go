package watermillbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	log "github.com/sirupsen/logrus"
	"github.com/tokenfund/mintd/internal/core/domain"
	"github.com/tokenfund/mintd/internal/core/ports"
)

const (
	typeMetadataKey = "type"
	bufferSize      = 100
)

type bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus returns an in-process bus. Publish waits until every subscriber
// received the event, which keeps events in order.
func NewBus() ports.EventBus {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            bufferSize,
		BlockPublishUntilSubscriberAck: true,
	}, watermill.NopLogger{})
	return &bus{pubsub}
}

func (b *bus) Publish(_ context.Context, events ...domain.Event) error {
	messages := make([]*message.Message, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to serialize %s event: %w", event.GetType(), err)
		}
		msg := message.NewMessage(watermill.NewUUID(), payload)
		msg.Metadata.Set(typeMetadataKey, string(event.GetType()))
		messages = append(messages, msg)
	}
	return b.pubsub.Publish(domain.SalesTopic, messages...)
}

func (b *bus) Subscribe(ctx context.Context) (<-chan domain.Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, domain.SalesTopic)
	if err != nil {
		return nil, err
	}

	ch := make(chan domain.Event, bufferSize)
	go func() {
		defer close(ch)
		for msg := range messages {
			event, err := deserializeEvent(msg)
			if err != nil {
				log.WithError(err).Warnf("failed to deserialize event %s", msg.UUID)
				msg.Ack()
				continue
			}
			select {
			case ch <- event:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return ch, nil
}

func (b *bus) Close() error {
	return b.pubsub.Close()
}

func deserializeEvent(msg *message.Message) (domain.Event, error) {
	eventType := domain.EventType(msg.Metadata.Get(typeMetadataKey))
	switch eventType {
	case domain.EventPaymentDetected:
		return unmarshal[domain.PaymentDetected](msg.Payload)
	case domain.EventTokenMinted:
		return unmarshal[domain.TokenMinted](msg.Payload)
	case domain.EventRefundSubmitted:
		return unmarshal[domain.RefundSubmitted](msg.Payload)
	case domain.EventAttemptFailed:
		return unmarshal[domain.AttemptFailedEvent](msg.Payload)
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}

func unmarshal[T domain.Event](payload []byte) (domain.Event, error) {
	var event T
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return event, nil
}

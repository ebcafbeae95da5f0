// Package jobs publishes catalog sync notifications to Pub/Sub.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/pubsub"

	"github.com/vinylyard/api/internal/services"
)

// EventSyncCompleted is the eventType attribute carried by sync completion messages.
const EventSyncCompleted = "catalog.sync.completed"

// PubSubSyncPublisher publishes sync completion events to a Pub/Sub topic.
type PubSubSyncPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.SyncEventPublisher = (*PubSubSyncPublisher)(nil)

// NewPubSubSyncPublisher constructs a Pub/Sub backed sync event publisher.
func NewPubSubSyncPublisher(topic *pubsub.Topic) (*PubSubSyncPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub sync publisher: topic is required")
	}
	return &PubSubSyncPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// PublishSyncCompleted sends the run summary and waits for the server id.
func (p *PubSubSyncPublisher) PublishSyncCompleted(ctx context.Context, message services.SyncCompletedMessage) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub sync publisher: not initialised")
	}

	data, err := p.marshal(message)
	if err != nil {
		return "", fmt.Errorf("marshal sync completed: %w", err)
	}

	attrs := map[string]string{
		"eventType":  EventSyncCompleted,
		"isComplete": strconv.FormatBool(message.IsComplete),
	}
	setAttr(attrs, "runId", message.RunID)
	setAttr(attrs, "locationId", message.LocationID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish sync completed: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *PubSubSyncPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}

package pubsub

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/airbusgeo/goes-ingester/interface/messaging"
	"github.com/airbusgeo/goes-ingester/service"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Publisher implements messaging.Publisher on a Google Pub/Sub topic
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

var _ messaging.Publisher = (*Publisher)(nil)

// NewPublisher creates a publisher on the topic of the project.
// The topic must exist (see tools/pubsub_emulator to create it on an emulator).
func NewPublisher(ctx context.Context, project, topic string) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}
	t := client.Topic(topic)
	t.PublishSettings.DelayThreshold = 50 * time.Millisecond
	return &Publisher{client: client, topic: t}, nil
}

// Publish implements messaging.Publisher. It waits for all the messages to be acknowledged by the server.
func (p *Publisher) Publish(ctx context.Context, data ...[]byte) error {
	results := make([]*pubsub.PublishResult, len(data))
	for i, d := range data {
		results[i] = p.topic.Publish(ctx, &pubsub.Message{
			Data:       d,
			Attributes: map[string]string{"source": "goes-ingester"},
		})
	}
	var err error
	for _, r := range results {
		if _, e := r.Get(ctx); e != nil {
			err = service.MergeErrors(true, err, wrapError(e))
		}
	}
	if err != nil {
		return fmt.Errorf("Publish[%s].%w", p.topic.ID(), err)
	}
	return nil
}

// Stop flushes the pending messages and closes the client
func (p *Publisher) Stop() error {
	p.topic.Stop()
	return p.client.Close()
}

func wrapError(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return service.MakeTemporary(err)
	}
	return err
}

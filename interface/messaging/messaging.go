package messaging

import "context"

// Publisher publishes messages on a queue
type Publisher interface {
	Publish(ctx context.Context, data ...[]byte) error
}

// MemoryPublisher keeps the messages in memory
type MemoryPublisher struct {
	Messages [][]byte
}

// Publish implements Publisher
func (p *MemoryPublisher) Publish(ctx context.Context, data ...[]byte) error {
	p.Messages = append(p.Messages, data...)
	return nil
}

package bus

import "context"

// Bus is the contract between chat channels and the host.
type Bus interface {
	// PublishInbound delivers an observed user message to the host.
	PublishInbound(ctx context.Context, msg InboundMessage) error
	// PublishOutbound queues a generated reply for post-processing.
	PublishOutbound(ctx context.Context, msg OutboundMessage) error
	// InboundChan returns a receive-only channel for the host to consume.
	InboundChan() <-chan InboundMessage
	// OutboundChan returns a receive-only channel for the host to consume.
	OutboundChan() <-chan OutboundMessage
}

// MessageBus is the default in-process Bus backed by buffered Go channels.
// Publishers block when a buffer is full, until ctx is done.
type MessageBus struct {
	inbound  chan InboundMessage  // channels -> host
	outbound chan OutboundMessage // reply sources -> host
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, bufSize),
		outbound: make(chan OutboundMessage, bufSize),
	}
}

// PublishInbound sends an InboundMessage to the host.
func (b *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) error {
	select {
	case b.inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishOutbound sends an OutboundMessage to the host.
func (b *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) error {
	select {
	case b.outbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InboundChan returns a receive-only view of the inbound channel.
func (b *MessageBus) InboundChan() <-chan InboundMessage {
	return b.inbound
}

// OutboundChan returns a receive-only view of the outbound channel.
func (b *MessageBus) OutboundChan() <-chan OutboundMessage {
	return b.outbound
}

func (b *MessageBus) InboundSize() int { return len(b.inbound) }

func (b *MessageBus) OutboundSize() int { return len(b.outbound) }

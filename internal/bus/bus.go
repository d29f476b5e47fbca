package bus

import (
	"context"
	"sync"
)

// queueSize bounds the inbound/outbound message queues. A channel/provider
// adapter publishing faster than the consumer drains blocks once the queue
// fills, applying natural backpressure rather than dropping messages.
const queueSize = 256

// MessageBus is the in-process pub/sub hub connecting channel adapters,
// the agent runtime, and WebSocket clients: inbound/outbound messages flow
// through buffered queues (one producer-consumer pair per direction),
// while server-side events fan out to every subscribed client.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	subMu       sync.RWMutex
	subscribers map[string]EventHandler
}

// New creates an empty MessageBus ready for use.
func New() *MessageBus {
	return &MessageBus{
		inbound:     make(chan InboundMessage, queueSize),
		outbound:    make(chan OutboundMessage, queueSize),
		subscribers: make(map[string]EventHandler),
	}
}

// PublishInbound enqueues a message received from a channel adapter for the
// agent runtime to consume. Blocks if the inbound queue is full.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// ConsumeInbound blocks until an inbound message is available or ctx is
// cancelled, in which case it returns (zero value, false).
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound enqueues a message for delivery back to a channel.
// Blocks if the outbound queue is full.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// SubscribeOutbound blocks until an outbound message is available or ctx is
// cancelled, in which case it returns (zero value, false).
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// Subscribe registers handler under id, replacing any existing registration
// for the same id (e.g. a reconnecting WebSocket client reusing its ID).
func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subscribers[id] = handler
}

// Unsubscribe removes id's handler, if any.
func (b *MessageBus) Unsubscribe(id string) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	delete(b.subscribers, id)
}

// Broadcast delivers event to every current subscriber synchronously. The
// subscriber snapshot is taken under lock but handlers run outside it, so a
// handler that calls Subscribe/Unsubscribe does not deadlock.
func (b *MessageBus) Broadcast(event Event) {
	b.subMu.RLock()
	handlers := make([]EventHandler, 0, len(b.subscribers))
	for _, h := range b.subscribers {
		handlers = append(handlers, h)
	}
	b.subMu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

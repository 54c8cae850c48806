package bus

import (
	"context"
	"sync"
)

// MessageChannel is a closable buffered channel bound to a lifetime context.
// Send and Close are safe to call concurrently.
type MessageChannel[T any] struct {
	channel    chan T
	context    context.Context
	bufferSize int

	mu     sync.RWMutex
	closed bool
}

func NewMessageChannel[T any](ctx context.Context, bufferSize int) *MessageChannel[T] {
	return &MessageChannel[T]{
		channel:    make(chan T, bufferSize),
		context:    ctx,
		bufferSize: bufferSize,
	}
}

// Send enqueues a message, blocking while the buffer is full until ctx or
// the channel lifetime ends.
func (mc *MessageChannel[T]) Send(ctx context.Context, message T) error {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	if mc.closed {
		return ErrClosed
	}
	select {
	case mc.channel <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-mc.context.Done():
		return mc.context.Err()
	}
}

// Receive blocks for the next message. ok is false once the channel is
// closed and drained or its lifetime ends.
func (mc *MessageChannel[T]) Receive() (T, bool) {
	select {
	case message, ok := <-mc.channel:
		return message, ok
	case <-mc.context.Done():
		var zero T
		return zero, false
	}
}

// Close stops further sends. Buffered messages remain receivable.
func (mc *MessageChannel[T]) Close() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if !mc.closed {
		mc.closed = true
		close(mc.channel)
	}
}

func (mc *MessageChannel[T]) IsClosed() bool {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.closed
}

func (mc *MessageChannel[T]) QueueLength() int {
	return len(mc.channel)
}

func (mc *MessageChannel[T]) BufferSize() int {
	return mc.bufferSize
}

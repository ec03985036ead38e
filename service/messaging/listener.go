package messaging

import (
	"context"
	"log"
	"time"
)

// Listener drains a queue in a background goroutine and invokes a handler
// for every message. A handler error nacks the message, otherwise it is
// acked. Used to bridge control plane queues to consumers such as
// notification adapters.
type Listener[T any] struct {
	queue   Queue[T]
	handler func(context.Context, *T) error
	idle    time.Duration
	cancel  context.CancelFunc
}

// NewListener creates a listener for the supplied queue. The handler runs
// sequentially, one message at a time.
func NewListener[T any](queue Queue[T], handler func(context.Context, *T) error) *Listener[T] {
	return &Listener[T]{queue: queue, handler: handler, idle: 20 * time.Millisecond}
}

// Start begins consuming until Stop is called.
func (l *Listener[T]) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	go l.run(ctx)
}

// Stop terminates the consuming goroutine.
func (l *Listener[T]) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
}

func (l *Listener[T]) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		message, err := l.queue.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[WARN] listener: consuming: %v", err)
			continue
		}
		if message == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.idle):
			}
			continue
		}
		if err := l.handler(ctx, message.T()); err != nil {
			_ = message.Nack(err)
			continue
		}
		_ = message.Ack()
	}
}

package events

import (
	"context"
	"sync"
	"time"

	"PPGate/logger"
	"PPGate/tools/safe"

	"go.uber.org/zap"
)

const (
	TopicMessageCreated  = "message.created"
	TopicPresenceChanged = "presence.changed"
)

// Publisher ships domain events to an external bus. key groups related
// events (Kafka partition key); buses without keys ignore it.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}

type Noop struct{}

func (Noop) Publish(context.Context, string, string, []byte) error { return nil }
func (Noop) Close() error                                          { return nil }

type event struct {
	topic, key string
	payload    []byte
}

// Async decouples callers from the bus: Publish only enqueues, one worker
// drains the queue. A full queue drops the event.
type Async struct {
	next    Publisher
	timeout time.Duration
	queue   chan event
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Publisher, queueSize int, timeout time.Duration) *Async {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	a := &Async{next: next, timeout: timeout, queue: make(chan event, queueSize), done: make(chan struct{})}
	safe.Go("events.async", a.loop)
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	for ev := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Publish(ctx, ev.topic, ev.key, ev.payload); err != nil {
			logger.Warn("[events] publish failed", zap.String("topic", ev.topic), zap.Error(err))
		}
		cancel()
	}
}

func (a *Async) Publish(_ context.Context, topic, key string, payload []byte) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	select {
	case a.queue <- event{topic: topic, key: key, payload: payload}:
	default:
		logger.Warn("[events] queue full, drop event", zap.String("topic", topic))
	}
	return nil
}

// Close flushes queued events and closes the underlying publisher.
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
	return a.next.Close()
}

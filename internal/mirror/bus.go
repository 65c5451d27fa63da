package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Notice tells subscribers the persisted mirror changed; they re-read it.
// No ordering guarantee beyond "eventually every context observes the latest
// persisted state".
type Notice struct {
	At time.Time `json:"at"`
}

// Bus broadcasts mutation notices to every mirror of the same origin.
type Bus interface {
	Publish(ctx context.Context, n Notice) error
	// Subscribe registers a handler and returns its cancel function.
	Subscribe(handler func(Notice)) (cancel func(), err error)
}

// MemoryBus fans notices out to in-process subscribers.
type MemoryBus struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]func(Notice)
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[int]func(Notice))}
}

func (b *MemoryBus) Publish(_ context.Context, n Notice) error {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	b.mu.Lock()
	handlers := make([]func(Notice), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(n)
	}
	return nil
}

func (b *MemoryBus) Subscribe(handler func(Notice)) (func(), error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}, nil
}

// RedisBus broadcasts over a pub/sub channel so mirrors in separate
// processes converge too.
type RedisBus struct {
	client  *redis.Client
	channel string
}

func NewRedisBus(client *redis.Client, origin string) *RedisBus {
	return &RedisBus{client: client, channel: "mirror:notify:" + origin}
}

func (b *RedisBus) Publish(ctx context.Context, n Notice) error {
	if n.At.IsZero() {
		n.At = time.Now()
	}
	return b.client.Publish(ctx, b.channel, n.At.UnixNano()).Err()
}

func (b *RedisBus) Subscribe(handler func(Notice)) (func(), error) {
	sub := b.client.Subscribe(context.Background(), b.channel)
	// Wait for the subscription to be confirmed so publishes after Subscribe
	// returns are not missed.
	if _, err := sub.Receive(context.Background()); err != nil {
		_ = sub.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				handler(Notice{At: time.Now()})
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}, nil
}

package events

import (
	"context"
	"sync"

	"todo-api/domain"
)

// Broker notifies in-process subscribers that the collection changed.
// Notifications coalesce: a subscriber that has not consumed the previous
// signal does not receive another one.
type Broker struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan struct{}]struct{})}
}

func (b *Broker) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(ch chan struct{}) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
}

func (b *Broker) Notify() {
	b.mu.Lock()
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// Send implements Sink.
func (b *Broker) Send(context.Context, domain.Change) error {
	b.Notify()
	return nil
}

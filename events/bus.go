package events

import (
	"sync"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Handler receives every published event. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(Event)

// Bus dispatches events to subscribers synchronously, in registration order.
// A panicking subscriber is isolated: the panic is logged and the remaining
// subscribers still run.
type Bus struct {
	logger *logrus.Logger

	mu   sync.RWMutex
	subs *orderedmap.OrderedMap[string, Handler]
}

// NewBus creates an empty Bus. A nil logger gets a default one.
func NewBus(logger *logrus.Logger) *Bus {
	if logger == nil {
		logger = logrus.New()
	}
	return &Bus{
		logger: logger,
		subs:   orderedmap.New[string, Handler](),
	}
}

// Subscribe registers handler under name. Re-subscribing an existing name
// replaces the handler but keeps its original position in dispatch order.
func (b *Bus) Subscribe(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs.Set(name, handler)
}

// Unsubscribe removes the named subscriber. Returns false if it was not
// registered.
func (b *Bus) Unsubscribe(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs.Delete(name)
	return ok
}

// Publish delivers ev to every subscriber in registration order.
func (b *Bus) Publish(ev Event) {
	type entry struct {
		name    string
		handler Handler
	}

	b.mu.RLock()
	entries := make([]entry, 0, b.subs.Len())
	for pair := b.subs.Oldest(); pair != nil; pair = pair.Next() {
		entries = append(entries, entry{name: pair.Key, handler: pair.Value})
	}
	b.mu.RUnlock()

	for _, e := range entries {
		b.dispatch(e.name, e.handler, ev)
	}
}

func (b *Bus) dispatch(name string, handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithFields(logrus.Fields{
				"subscriber": name,
				"topic":      ev.Topic(),
				"panic":      r,
			}).Error("Event subscriber panicked; continuing with remaining subscribers")
		}
	}()
	handler(ev)
}

// SubscriberCount reports registered subscribers, for diagnostics.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subs.Len()
}

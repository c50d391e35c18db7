// Package relay fans captured telemetry out to status-API subscribers as
// server-sent events.
package relay

import (
	"encoding/json"
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 256

// Telemetry feed names.
const (
	FeedLog       = "log"
	FeedNetwork   = "network"
	FeedException = "exception"
)

// Event is one captured entry published to live subscribers.
type Event struct {
	Feed    string
	Payload json.RawMessage
}

// Broker fans out events to all subscribed SSE clients.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      atomic.Int64
}

// NewBroker creates an event broker.
func NewBroker() *Broker {
	return &Broker{subscribers: make(map[int64]chan Event)}
}

// Subscribe registers a new client. Returns the subscriber ID and a channel
// to receive events on. The channel is buffered; slow consumers have events
// dropped.
func (b *Broker) Subscribe() (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish marshals entry and sends it to all subscribers without blocking.
func (b *Broker) Publish(feed string, entry any) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	evt := Event{Feed: feed, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Package bus implements the single-producer-multiple-consumer event
// broadcast of spec §4.5: SnapshotDelta, TapEvent and ConfigDelta events
// fan out to subscribers identified by opaque handles, each behind a
// bounded queue so a slow subscriber can never block the producer.
package bus

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pisugar/pisugar-server/internal/model"
)

// EventKind tags a published Event.
type EventKind int

const (
	KindSnapshotDelta EventKind = iota
	KindTapEvent
	KindConfigDelta
	KindLog
)

// Event is the envelope broadcast to every subscriber.
type Event struct {
	Kind   EventKind
	Field  string // for SnapshotDelta/ConfigDelta: the key that changed
	Value  interface{}
	Tap    model.ButtonEvent // valid when Kind == KindTapEvent
	Log    LogEntry          // valid when Kind == KindLog
}

// LogEntry mirrors a broadcast log line (wired from internal/logger).
type LogEntry struct {
	Level   string
	Message string
	Source  string
	Fields  map[string]interface{}
}

const defaultQueueSize = 64

// Subscriber is an opaque handle to one subscriber's bounded queue.
// Dropping a handle (Unsubscribe) removes it from the bus with no dangling
// reference back to the connection that created it, per spec §9.
type Subscriber struct {
	id      string
	events  chan Event
	tapsPri chan Event // tap events are never dropped; queued with priority
}

// Events returns the channel of ordinary (droppable) events.
func (s *Subscriber) Events() <-chan Event { return s.events }

// Taps returns the channel of tap events, which are never dropped.
func (s *Subscriber) Taps() <-chan Event { return s.tapsPri }

// Bus is the free-standing broadcast hub.
type Bus struct {
	mu    sync.RWMutex
	subs  map[string]*Subscriber
	snap  func() model.BatterySnapshot // supplies the synthetic attach snapshot
}

// New constructs a Bus. snapshotFn is called once per new subscriber to
// synthesize the full-state event delivered on attach (spec §4.5).
func New(snapshotFn func() model.BatterySnapshot) *Bus {
	return &Bus{subs: make(map[string]*Subscriber), snap: snapshotFn}
}

// Subscribe registers a new subscriber and immediately delivers a
// synthetic full-snapshot SnapshotDelta.
func (b *Bus) Subscribe() *Subscriber {
	sub := &Subscriber{
		id:      uuid.NewString(),
		events:  make(chan Event, defaultQueueSize),
		tapsPri: make(chan Event, defaultQueueSize),
	}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	if b.snap != nil {
		sub.events <- Event{Kind: KindSnapshotDelta, Field: "__full__", Value: b.snap()}
	}
	return sub
}

// Unsubscribe removes a subscriber and closes its channels.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		close(sub.events)
		close(sub.tapsPri)
	}
}

// PublishSnapshotDelta broadcasts a single field change. Slow subscribers
// drop the oldest queued delta rather than block (spec §4.5); tap events
// use PublishTap instead and are never dropped.
func (b *Bus) PublishSnapshotDelta(field string, value interface{}) {
	b.broadcast(Event{Kind: KindSnapshotDelta, Field: field, Value: value})
}

// PublishConfigDelta broadcasts a configuration field change.
func (b *Bus) PublishConfigDelta(field string, value interface{}) {
	b.broadcast(Event{Kind: KindConfigDelta, Field: field, Value: value})
}

// PublishLog broadcasts one log line for push-subscribed clients.
func (b *Bus) PublishLog(level, message, source string, fields map[string]interface{}) {
	b.broadcast(Event{Kind: KindLog, Log: LogEntry{Level: level, Message: message, Source: source, Fields: fields}})
}

// PublishTap broadcasts a classified tap event with priority delivery: it
// is queued on a separate channel per subscriber and never dropped.
func (b *Bus) PublishTap(ev model.ButtonEvent) {
	event := Event{Kind: KindTapEvent, Tap: ev}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		sub.tapsPri <- event // bounded by defaultQueueSize; classifier cadence keeps this well under capacity
	}
}

func (b *Bus) broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.events <- event:
		default:
			// Queue full: drop the oldest delta to make room, never block.
			select {
			case <-sub.events:
			default:
			}
			select {
			case sub.events <- event:
			default:
			}
		}
	}
}

// SubscriberCount reports the number of attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

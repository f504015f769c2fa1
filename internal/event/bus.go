// Package event provides a pub/sub UI event stream backed by a watermill
// gochannel: every Publish/PublishSync marshals the Event and hands it to the
// gochannel, a single dispatch goroutine reads it back off the subscription
// and fans it out to the registered Subscriber funcs, matching how the
// Symbol Hub fans a single stream of SymbolEvent-derived notifications out to
// any number of editor-UI listeners.
package event

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// busTopic is the single gochannel topic every Event is published to; Bus
// keeps its own type/global subscriber bookkeeping and filters after the
// gochannel hands a message back, rather than using one topic per Type.
const busTopic = "events"

// Type identifies the kind of UI event carried on the stream.
type Type string

const (
	TypeSymbolEvent        Type = "symbol_event"
	TypeSymbolSubStep      Type = "symbol_event_sub_step"
	TypeProbingStart       Type = "request.probing_start"
	TypeProbeFinished      Type = "request.probe_finished"
	TypeEditRequestFinished Type = "edit_request_finished"
	TypeInitialSearchSymbols Type = "framework.initial_search_symbols"
	TypeOpenFile            Type = "framework.open_file"
	TypeReferenceFound      Type = "framework.reference_found"
	TypeReferenceRelevant   Type = "framework.reference_relevant"
	TypeGroupedReferences   Type = "framework.grouped_references"
	TypeRepoMapGenStart     Type = "framework.repo_map_generation_start"
	TypeRepoMapGenFinished  Type = "framework.repo_map_generation_finished"
	TypeLongContextStart    Type = "framework.long_context_search_start"
	TypeLongContextFinished Type = "framework.long_context_search_finished"
	TypeCodeIterationFinished Type = "framework.code_iteration_finished"
	TypeSessionCreated      Type = "session.created"
	TypeSessionUpdated      Type = "session.updated"
	TypeExchangeCancelled   Type = "exchange.cancelled"
	TypeFatalError          Type = "exchange.fatal_error"
)

// Event is one entry on the UI event stream; RequestId ties it back to the
// SymbolEventMessageProperties that originated the work producing it.
type Event struct {
	Type      Type   `json:"type"`
	RequestId string `json:"request_id"`
	Data      any    `json:"data"`
}

// Subscriber receives events published on the bus.
type Subscriber func(event Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus fans events out to subscribers. A watermill gochannel backs the bus so
// it can later be swapped for a distributed transport without touching callers;
// each event is JSON-encoded into the gochannel and decoded again in the
// dispatch loop, so subscribers receive Data as encoding/json decodes it into
// an any value, not as the Go type the publisher passed.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[Type][]subscriberEntry
	global      []subscriberEntry

	nextID       uint64
	closed       bool
	closedCancel context.CancelFunc
	closedCtx    context.Context
}

var globalBus = newBus()

func newBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers:  make(map[Type][]subscriberEntry),
		closedCtx:    ctx,
		closedCancel: cancel,
	}

	messages, err := b.pubsub.Subscribe(ctx, busTopic)
	if err != nil {
		// gochannel.Subscribe only errors once the pubsub is closed, which
		// cannot happen before it's even constructed.
		panic(err)
	}
	go b.dispatchLoop(messages)
	return b
}

// dispatchLoop is the bus's single consumer of its own gochannel topic: it
// decodes each message back into an Event and runs it through collect(),
// calling every matching subscriber before acking, so PublishSync callers
// that wait on the message's ack channel see subscribers run first.
func (b *Bus) dispatchLoop(messages <-chan *message.Message) {
	for msg := range messages {
		var e Event
		if err := json.Unmarshal(msg.Payload, &e); err == nil {
			for _, sub := range b.collect(e.Type) {
				sub(e)
			}
		}
		msg.Ack()
	}
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers fn for events of the given type on the global bus.
func Subscribe(t Type, fn Subscriber) func() { return globalBus.Subscribe(t, fn) }

func (b *Bus) Subscribe(t Type, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.newID()
	b.subscribers[t] = append(b.subscribers[t], subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribe(t, id) }
}

// SubscribeAll registers fn for every event type on the global bus.
func SubscribeAll(fn Subscriber) func() { return globalBus.SubscribeAll(fn) }

func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribeGlobal(id) }
}

func (b *Bus) unsubscribe(t Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[t]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[t] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			return
		}
	}
}

// Publish hands event to the gochannel and returns without waiting for the
// dispatch loop to run subscribers; delivery is asynchronous from the
// caller's point of view.
func Publish(e Event) { globalBus.Publish(e) }

func (b *Bus) Publish(e Event) {
	msg, ok := b.newMessage(e)
	if !ok {
		return
	}
	_ = b.pubsub.Publish(busTopic, msg)
}

// PublishSync hands event to the gochannel and blocks until the dispatch
// loop has acked it, i.e. every matching subscriber has already run,
// preserving the send-order guarantee the Symbol Hub needs for a single
// streaming edit.
func PublishSync(e Event) { globalBus.PublishSync(e) }

func (b *Bus) PublishSync(e Event) {
	msg, ok := b.newMessage(e)
	if !ok {
		return
	}
	if err := b.pubsub.Publish(busTopic, msg); err != nil {
		return
	}
	select {
	case <-msg.Acked():
	case <-msg.Nacked():
	case <-b.closedCtx.Done():
	}
}

// newMessage marshals e into a gochannel message, reporting false if the bus
// is closed or e cannot be encoded.
func (b *Bus) newMessage(e Event) (*message.Message, bool) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, false
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, false
	}
	return message.NewMessage(watermill.NewUUID(), payload), true
}

func (b *Bus) collect(t Type) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	subs := make([]Subscriber, 0, len(b.subscribers[t])+len(b.global))
	for _, entry := range b.subscribers[t] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs
}

// NewBus creates an independent bus instance, used by SessionService/tests
// that want isolation from the process-wide default.
func NewBus() *Bus { return newBus() }

// Reset tears down and replaces the global bus; test-only.
func Reset() {
	globalBus.mu.Lock()
	globalBus.closed = true
	globalBus.closedCancel()
	globalBus.mu.Unlock()

	_ = globalBus.pubsub.Close()
	time.Sleep(10 * time.Millisecond)

	globalBus = newBus()
}

// Close shuts the bus down; further Publish calls are no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.closedCancel()
	b.subscribers = make(map[Type][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()
	return b.pubsub.Close()
}

// PubSub exposes the underlying watermill channel for advanced routing/middleware.
func (b *Bus) PubSub() *gochannel.GoChannel { return b.pubsub }

// PubSub returns the global bus's underlying watermill channel.
func PubSub() *gochannel.GoChannel { return globalBus.PubSub() }

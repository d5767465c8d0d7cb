// Package stream implements the SSE fan-out:
// a subscriber registry of bounded per-subscriber queues, drop-on-slow-
// consumer broadcast, and a bounded replay deque for the API-call log.
package stream

import (
	"sync"
)

// subscriberQueueCap bounds each subscriber's pending-event queue. A
// full queue causes the event to be dropped for that subscriber only.
const subscriberQueueCap = 10

// Broadcaster fans pre-encoded SSE payloads out to many subscribers. A
// replayCap > 0 additionally retains the last N payloads for new
// subscribers to replay before entering live mode (used by the API-call
// log stream).
type Broadcaster struct {
	mu        sync.Mutex
	subs      map[int64]chan []byte
	nextID    int64
	replayCap int
	replay    [][]byte
	bridge    Bridge
	channel   string
}

// Bridge is the optional cross-replica fan-out hook (a Redis pub/sub
// bridge in production; nil is a valid no-op).
type Bridge interface {
	Publish(channel string, payload []byte) error
}

// NewBroadcaster returns an empty Broadcaster. replayCap of 0 disables
// replay (the vehicle-update stream only needs an on-connect snapshot,
// provided by the caller, not a payload replay).
func NewBroadcaster(replayCap int) *Broadcaster {
	return &Broadcaster{
		subs:      make(map[int64]chan []byte),
		replayCap: replayCap,
	}
}

// SetBridge attaches an optional cross-replica publish bridge; bridge may
// be nil to disable it. channel names the pub/sub channel this
// broadcaster's events are mirrored onto.
func (b *Broadcaster) SetBridge(bridge Bridge, channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bridge = bridge
	b.channel = channel
}

// Subscribe registers a new subscriber and returns its id, receive
// channel, and a copy of the current replay buffer (oldest first). The
// caller must call Unsubscribe(id) on disconnect.
func (b *Broadcaster) Subscribe() (int64, <-chan []byte, [][]byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan []byte, subscriberQueueCap)
	b.subs[id] = ch

	replay := make([][]byte, len(b.replay))
	copy(replay, b.replay)
	return id, ch, replay
}

// Unsubscribe removes a subscriber's queue from the registry. The channel
// is deliberately never closed: Publish/Deliver send outside the registry
// lock, and a send on a closed channel is always "ready" to a select, so
// closing here would let a disconnect racing a broadcast panic the
// producer. The reader has already exited via its request context, so the
// orphaned channel is simply garbage collected.
func (b *Broadcaster) Unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Publish pre-encodes nothing itself — payload must already be a
// complete "data: <json>\n\n" frame, encoded once by the caller — and
// enqueues it non-blockingly to every subscriber, dropping it for any
// subscriber whose queue is full.
func (b *Broadcaster) Publish(payload []byte) {
	b.mu.Lock()
	if b.replayCap > 0 {
		b.replay = append(b.replay, payload)
		if len(b.replay) > b.replayCap {
			b.replay = b.replay[len(b.replay)-b.replayCap:]
		}
	}
	subs := make([]chan []byte, 0, len(b.subs))
	for _, ch := range b.subs {
		subs = append(subs, ch)
	}
	bridge := b.bridge
	channel := b.channel
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- payload:
		default:
			// Slow consumer: drop this event for this subscriber only.
		}
	}

	if bridge != nil {
		_ = bridge.Publish(channel, payload)
	}
}

// Deliver fans payload out to this broadcaster's local subscribers (and
// into its replay buffer) exactly like Publish, but never re-publishes to
// the bridge. Use this for frames received FROM the bridge, so a
// cross-replica message doesn't bounce back out and loop forever.
func (b *Broadcaster) Deliver(payload []byte) {
	b.mu.Lock()
	if b.replayCap > 0 {
		b.replay = append(b.replay, payload)
		if len(b.replay) > b.replayCap {
			b.replay = b.replay[len(b.replay)-b.replayCap:]
		}
	}
	subs := make([]chan []byte, 0, len(b.subs))
	for _, ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- payload:
		default:
		}
	}
}

// SubscriberCount reports the current number of live subscribers, for
// health/diagnostics.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

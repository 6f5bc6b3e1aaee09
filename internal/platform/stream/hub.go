// Package stream provides real-time fan-out of patient vitals events to
// connected viewers. A single Hub owns the subscriber registry; transports
// (SSE, WebSocket) attach subscribers and drain their frame channels.
package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// FrameHeartbeat and FramePatientUpdate are the named frame types delivered
// to every subscriber.
const (
	FrameHeartbeat     = "heartbeat"
	FramePatientUpdate = "patient-update"
)

// Frame is a single named message on a subscriber channel. Data is the
// JSON-encoded event body.
type Frame struct {
	Name string
	Data []byte
}

// subscriberBuffer is the per-subscriber frame channel capacity. A subscriber
// whose transport cannot drain this many frames within the send timeout is
// considered dead and dropped.
const subscriberBuffer = 256

// Subscriber is an opaque handle for one streaming session. It has no
// persisted identity; its lifetime is bound to the session that created it.
type Subscriber struct {
	id     uuid.UUID
	frames chan Frame
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	lastSeen time.Time
}

// ID returns the session identifier, used only for logging.
func (s *Subscriber) ID() uuid.UUID { return s.id }

// Frames returns the channel the transport drains.
func (s *Subscriber) Frames() <-chan Frame { return s.frames }

// Done is closed when the subscriber is deregistered, whatever the reason.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Touch records transport activity, deferring the idle timeout.
func (s *Subscriber) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Subscriber) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.done) })
}

// Hub is the broadcast hub: a concurrency-safe subscriber registry with
// best-effort, at-most-once fan-out. Broadcast iterates a snapshot of the
// subscriber set taken at call time, so subscribe/unsubscribe during a
// broadcast never corrupts iteration and never blocks on it.
type Hub struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscriber

	sendTimeout time.Duration
	idleTimeout time.Duration
	logger      zerolog.Logger

	stopReaper chan struct{}
	reaperOnce sync.Once
}

// NewHub creates a hub. sendTimeout bounds delivery to each subscriber during
// a broadcast; idleTimeout is the ceiling after which a session with no
// transport activity is terminated.
func NewHub(sendTimeout, idleTimeout time.Duration, logger zerolog.Logger) *Hub {
	h := &Hub{
		subs:        make(map[uuid.UUID]*Subscriber),
		sendTimeout: sendTimeout,
		idleTimeout: idleTimeout,
		logger:      logger,
		stopReaper:  make(chan struct{}),
	}
	go h.reapIdle()
	return h
}

// Subscribe registers a new subscriber and immediately pushes one heartbeat
// frame on its channel so intermediary network elements do not treat the new
// stream as stalled. The subscriber only ever sees events broadcast after it
// joined.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		id:       uuid.New(),
		frames:   make(chan Frame, subscriberBuffer),
		done:     make(chan struct{}),
		lastSeen: time.Now(),
	}

	// The channel is empty, so the heartbeat cannot block.
	sub.frames <- Frame{Name: FrameHeartbeat, Data: []byte(`{}`)}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()

	h.logger.Debug().Str("subscriber", sub.id.String()).Msg("stream subscriber registered")
	return sub
}

// Unsubscribe removes a subscriber. It is idempotent and safe to call
// concurrently with an in-flight broadcast; once it returns, the handle is
// unreachable by future broadcasts.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	_, present := h.subs[sub.id]
	delete(h.subs, sub.id)
	h.mu.Unlock()

	sub.close()

	if present {
		h.logger.Debug().Str("subscriber", sub.id.String()).Msg("stream subscriber removed")
	}
}

// Broadcast marshals event and delivers it as a patient-update frame to a
// snapshot of the currently registered subscribers. Delivery is at-most-once
// and per-subscriber: one slow or dead subscriber never blocks the others or
// the producer. Exceeding the send timeout drops that subscriber.
func (h *Hub) Broadcast(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Msg("stream: marshal event")
		return
	}
	frame := Frame{Name: FramePatientUpdate, Data: data}

	h.mu.RLock()
	snapshot := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	for _, sub := range snapshot {
		h.deliver(sub, frame)
	}
}

func (h *Hub) deliver(sub *Subscriber, frame Frame) {
	timer := time.NewTimer(h.sendTimeout)
	defer timer.Stop()

	select {
	case sub.frames <- frame:
		sub.Touch()
	case <-sub.done:
		// Already deregistered mid-broadcast; nothing to do.
	case <-timer.C:
		h.logger.Warn().Str("subscriber", sub.id.String()).Msg("stream: send timeout, dropping subscriber")
		h.Unsubscribe(sub)
	}
}

// SubscriberCount returns the number of currently registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close terminates the idle reaper and deregisters every subscriber.
func (h *Hub) Close() {
	h.reaperOnce.Do(func() { close(h.stopReaper) })

	h.mu.Lock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[uuid.UUID]*Subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// reapIdle periodically drops subscribers whose sessions have seen no
// transport activity for longer than the idle ceiling.
func (h *Hub) reapIdle() {
	interval := h.idleTimeout / 10
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopReaper:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-h.idleTimeout)

			h.mu.RLock()
			var stale []*Subscriber
			for _, sub := range h.subs {
				if sub.idleSince().Before(cutoff) {
					stale = append(stale, sub)
				}
			}
			h.mu.RUnlock()

			for _, sub := range stale {
				h.logger.Info().Str("subscriber", sub.id.String()).Msg("stream: idle timeout, dropping subscriber")
				h.Unsubscribe(sub)
			}
		}
	}
}

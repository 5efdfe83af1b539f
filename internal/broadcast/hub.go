// Package broadcast fans pipeline events out to live dashboard subscribers
// over SSE and WebSocket. Publishing never blocks the pipeline: the hub's
// inbound channel is bounded, every subscriber owns a bounded FIFO queue, and
// a subscriber that cannot keep up is dropped rather than slowing the rest.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/oceanguard/hazard-engine/internal/metrics"
)

// Topics carried on the stream.
const (
	TopicConnected       = "connected"
	TopicKeepalive       = "keepalive"
	TopicNewReport       = "new_report"
	TopicReportProcessed = "report_processed"
	TopicHazardUpdated   = "hazard_updated"
	TopicEmergencyAlert  = "emergency_alert"
	TopicHazardValidated = "hazard_validated"
	TopicAlertRaised     = "alert_raised"
)

// ErrSubscriberGone is returned by Next once a subscriber has been dropped as
// a slow consumer or explicitly closed.
var ErrSubscriberGone = errors.New("subscriber gone")

// Frame is the wire envelope every topic shares.
type Frame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func encodeFrame(topic string, payload any) ([]byte, error) {
	f := Frame{Type: topic, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		f.Data = data
	}
	return json.Marshal(f)
}

// Hub maintains the set of live subscribers and fans published frames out to
// all of them.
type Hub struct {
	mu        sync.Mutex
	subs      map[*Subscriber]struct{}
	inbound   chan []byte
	bufSize   int
	keepalive time.Duration
}

func NewHub(subscriberBuffer int, keepalive time.Duration) *Hub {
	if subscriberBuffer <= 0 {
		subscriberBuffer = 64
	}
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	return &Hub{
		subs:      make(map[*Subscriber]struct{}),
		inbound:   make(chan []byte, 256),
		bufSize:   subscriberBuffer,
		keepalive: keepalive,
	}
}

// Run consumes the inbound channel until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-h.inbound:
			h.fanOut(frame)
		}
	}
}

// fanOut snapshots the subscriber set under the lock and sends after
// releasing it, so one slow channel cannot hold the lock.
func (h *Hub) fanOut(frame []byte) {
	h.mu.Lock()
	targets := make([]*Subscriber, 0, len(h.subs))
	for sub := range h.subs {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- frame:
		default:
			h.drop(sub)
			metrics.FramesDropped.WithLabelValues("slow_subscriber").Inc()
		}
	}
}

// Publish marshals the payload once and queues the frame for fan-out. When
// the inbound channel is full the frame is dropped and counted.
func (h *Hub) Publish(topic string, payload any) {
	frame, err := encodeFrame(topic, payload)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("failed to encode broadcast frame")
		return
	}
	select {
	case h.inbound <- frame:
		metrics.FramesPublished.WithLabelValues(topic).Inc()
	default:
		metrics.FramesDropped.WithLabelValues("overflow").Inc()
		log.Warn().Str("topic", topic).Msg("broadcast hub overflow, frame dropped")
	}
}

// Subscribe registers a new subscriber. The first frame it receives is always
// connected.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		id:   uuid.NewString(),
		hub:  h,
		ch:   make(chan []byte, h.bufSize),
		done: make(chan struct{}),
	}
	if frame, err := encodeFrame(TopicConnected, map[string]string{
		"subscriber_id": sub.id,
		"message":       "connected to hazard event stream",
	}); err == nil {
		sub.ch <- frame
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	metrics.StreamSubscribers.Set(float64(n))
	log.Debug().Str("subscriber", sub.id).Int("subscribers", n).Msg("stream subscriber joined")
	return sub
}

func (h *Hub) drop(sub *Subscriber) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	if ok {
		delete(h.subs, sub)
	}
	n := len(h.subs)
	h.mu.Unlock()

	if ok {
		sub.closeOnce.Do(func() { close(sub.done) })
		metrics.StreamSubscribers.Set(float64(n))
		log.Debug().Str("subscriber", sub.id).Int("subscribers", n).Msg("stream subscriber left")
	}
}

// SubscriberCount reports the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Subscriber is one live stream consumer with its own bounded FIFO queue.
type Subscriber struct {
	id        string
	hub       *Hub
	ch        chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// ID returns the subscriber's opaque identifier, mainly for logs.
func (s *Subscriber) ID() string { return s.id }

// Next returns the next frame, blocking up to the keepalive interval. On
// timeout it synthesizes a keepalive frame so idle connections stay warm.
// Frames already queued are drained in order even after the subscriber has
// been dropped.
func (s *Subscriber) Next(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-s.ch:
		return frame, nil
	default:
	}

	timer := time.NewTimer(s.hub.keepalive)
	defer timer.Stop()

	select {
	case frame := <-s.ch:
		return frame, nil
	case <-timer.C:
		return encodeFrame(TopicKeepalive, nil)
	case <-s.done:
		return nil, ErrSubscriberGone
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close unregisters the subscriber. Safe to call more than once.
func (s *Subscriber) Close() {
	s.hub.drop(s)
}

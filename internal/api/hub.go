package api

import (
	"context"
	"log/slog"
	"sync"

	"github.com/graaaaa/scr-multilauncher/internal/engine"
)

// LineEvent is one new log line as sent to stream clients.
type LineEvent struct {
	Seq     uint64 `json:"seq"`
	Line    string `json:"line"`
	CycleID string `json:"cycle_id,omitempty"`
}

// Subscriber receives the lines published after it subscribed.
type Subscriber struct {
	events chan LineEvent
	done   chan struct{}
}

// Events delivers lines in publish order. It is closed on unsubscribe.
func (s *Subscriber) Events() <-chan LineEvent { return s.events }

// Done is closed on unsubscribe or when the hub closes.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

func (s *Subscriber) close() {
	close(s.done)
	close(s.events)
}

// Hub fans log lines out to stream subscribers. A slow subscriber loses
// lines instead of stalling the engine.
type Hub struct {
	bufSize int
	logger  *slog.Logger

	mu     sync.Mutex
	subs   map[*Subscriber]struct{}
	seq    uint64
	closed bool
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubSubscriberBufferSize sets how many lines a subscriber may lag.
func WithHubSubscriberBufferSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.bufSize = n
		}
	}
}

// WithHubLogger sets the logger.
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub creates an open hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		bufSize: 64,
		logger:  slog.Default(),
		subs:    make(map[*Subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a subscriber. Pair it with Unsubscribe. On a closed
// hub the subscriber comes back already done.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		events: make(chan LineEvent, h.bufSize),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.close()
		return sub
	}
	h.subs[sub] = struct{}{}
	h.logger.Debug("stream subscriber added", "subscribers", len(h.subs))
	return sub
}

// Unsubscribe removes sub and closes its channels. Nil and repeated calls
// are no-ops.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	sub.close()
	h.logger.Debug("stream subscriber removed", "subscribers", len(h.subs))
}

// Publish numbers line and offers it to every subscriber without blocking.
// Empty lines are ignored.
func (h *Hub) Publish(line, cycleID string) {
	if line == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	h.seq++
	e := LineEvent{Seq: h.seq, Line: line, CycleID: cycleID}
	for sub := range h.subs {
		select {
		case sub.events <- e:
		default:
			h.logger.Warn("stream subscriber lagging, line dropped", "seq", e.Seq)
		}
	}
}

// Record publishes the lines of rec. It implements engine.Sink.
func (h *Hub) Record(_ context.Context, rec engine.Record) {
	for _, line := range rec.Lines {
		h.Publish(line, rec.CycleID)
	}
}

// Close ends every subscription. Later Publish calls are dropped. It is
// safe to call more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		sub.close()
	}
	clear(h.subs)
}

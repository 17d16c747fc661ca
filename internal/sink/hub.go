package sink

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/trafficear/internal/observe"
	"github.com/MrWong99/trafficear/pkg/types"
)

const (
	defaultSubscriberBuffer = 32
	defaultWriteTimeout     = 5 * time.Second
)

// DecisionMessage is the JSON frame sent to websocket subscribers.
type DecisionMessage struct {
	Type     string    `json:"type"`
	Stream   string    `json:"stream"`
	Class    int       `json:"class"`
	Label    string    `json:"label,omitempty"`
	Cycle    uint64    `json:"cycle"`
	Polarity string    `json:"polarity"`
	Time     time.Time `json:"time"`
}

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithSubscriberBuffer sets how many undelivered decisions a subscriber may
// queue before further decisions are dropped for it. Default: 32.
func WithSubscriberBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithOriginPatterns sets the accepted websocket origin patterns.
func WithOriginPatterns(patterns ...string) HubOption {
	return func(h *Hub) { h.origins = patterns }
}

// WithHubMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithHubMetrics(m *observe.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// Hub broadcasts decisions to websocket subscribers. Emit never blocks on a
// slow subscriber: when its queue is full the decision is dropped for that
// subscriber only.
type Hub struct {
	buffer  int
	origins []string
	metrics *observe.Metrics
	now     func() time.Time

	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	ch      chan DecisionMessage
	dropped atomic.Uint64
}

// NewHub returns an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		buffer: defaultSubscriberBuffer,
		now:    time.Now,
		subs:   make(map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// Name returns "hub".
func (*Hub) Name() string { return "hub" }

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Emit queues d for every subscriber. It never fails.
func (h *Hub) Emit(_ context.Context, d types.Decision) error {
	msg := DecisionMessage{
		Type:     "decision",
		Stream:   d.Stream,
		Class:    d.Class,
		Label:    d.Label,
		Cycle:    d.Cycle,
		Polarity: d.Polarity.String(),
		Time:     h.now().UTC(),
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.ch <- msg:
		default:
			s.dropped.Add(1)
			slog.Debug("hub: subscriber queue full, dropping decision", "cycle", d.Cycle)
		}
	}
	return nil
}

// ServeHTTP upgrades the request to a websocket and streams decisions until
// the client disconnects or the request context ends. Client messages are
// ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		observe.Logger(r.Context()).Warn("hub: websocket accept failed", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	s := &subscriber{ch: make(chan DecisionMessage, h.buffer)}
	h.add(r.Context(), s)
	defer h.remove(context.WithoutCancel(r.Context()), s)

	log := observe.Logger(r.Context())
	log.Info("hub: subscriber connected", "remote", r.RemoteAddr)

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			log.Info("hub: subscriber disconnected", "remote", r.RemoteAddr)
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg := <-s.ch:
			wctx, cancel := context.WithTimeout(ctx, defaultWriteTimeout)
			err := wsjson.Write(wctx, conn, msg)
			cancel()
			if err != nil {
				log.Debug("hub: write failed", "remote", r.RemoteAddr, "err", err)
				return
			}
		}
	}
}

func (h *Hub) add(ctx context.Context, s *subscriber) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	h.metrics.HubSubscribers.Add(ctx, 1)
}

func (h *Hub) remove(ctx context.Context, s *subscriber) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
	dropped := s.dropped.Load()
	h.metrics.HubSubscribers.Add(ctx, -1)
	if dropped > 0 {
		slog.Warn("hub: subscriber missed decisions", "dropped", dropped)
	}
}

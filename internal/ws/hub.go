package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"directchat/internal/domain"
	"directchat/internal/metrics"
	"directchat/internal/presence"
)

// frame is the wire envelope of every server-pushed event.
type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encodeFrame(ev domain.Event) ([]byte, error) {
	return json.Marshal(frame{Event: ev.Name, Data: ev.Payload})
}

// Hub owns the presence registry and routes events to live clients. It is
// the process's domain.EventSink.
type Hub struct {
	// mu orders presence changes so each online-set broadcast reaches
	// clients in the order the registry changed.
	mu           sync.Mutex
	registry     *presence.Registry[*Client]
	log          *slog.Logger
	pingInterval time.Duration
	sendBuffer   int
}

var _ domain.EventSink = (*Hub)(nil)

func NewHub(log *slog.Logger, pingInterval time.Duration, sendBuffer int) *Hub {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Hub{
		registry:     presence.NewRegistry[*Client](),
		log:          log,
		pingInterval: pingInterval,
		sendBuffer:   sendBuffer,
	}
}

// Notify queues ev for userID's current connection. Offline recipients are
// skipped; a client whose buffer is full is dropped.
func (h *Hub) Notify(userID string, ev domain.Event) {
	c, ok := h.registry.Lookup(userID)
	if !ok {
		metrics.EventsEmitted.WithLabelValues(ev.Name, metrics.OutcomeOffline).Inc()
		h.log.Debug("event recipient offline", "user", userID, "event", ev.Name)
		return
	}
	data, err := encodeFrame(ev)
	if err != nil {
		h.log.Error("encode event", "event", ev.Name, "err", err)
		return
	}
	h.deliver(c, ev.Name, data)
}

func (h *Hub) deliver(c *Client, event string, data []byte) {
	if c.closed() {
		// Disconnected but not yet detached.
		metrics.EventsEmitted.WithLabelValues(event, metrics.OutcomeOffline).Inc()
		return
	}
	if c.enqueue(data) {
		metrics.EventsEmitted.WithLabelValues(event, metrics.OutcomeDelivered).Inc()
		return
	}
	metrics.EventsEmitted.WithLabelValues(event, metrics.OutcomeDropped).Inc()
	h.log.Warn("dropping slow client", "user", c.userID, "event", event)
	c.close()
}

// Attach registers c as its user's live connection and announces the new
// online set. A previous connection of the same user stays open but stops
// receiving events.
func (h *Hub) Attach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.token = h.registry.Register(c.userID, c)
	h.log.Info("client connected", "user", c.userID)
	h.broadcastOnline()
}

// Detach removes c if it is still its user's current connection.
func (h *Hub) Detach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.registry.Unregister(c.userID, c.token) {
		h.log.Debug("stale disconnect ignored", "user", c.userID)
		return
	}
	h.log.Info("client disconnected", "user", c.userID)
	h.broadcastOnline()
}

// Online returns the sorted ids of connected users.
func (h *Hub) Online() []string {
	return h.registry.Snapshot()
}

// IsOnline reports whether userID holds a live connection.
func (h *Hub) IsOnline(userID string) bool {
	_, ok := h.registry.Lookup(userID)
	return ok
}

// broadcastOnline must be called with h.mu held.
func (h *Hub) broadcastOnline() {
	ids := h.registry.Snapshot()
	metrics.OnlineUsers.Set(float64(len(ids)))

	ev := domain.OnlineUsersEvent(ids)
	data, err := encodeFrame(ev)
	if err != nil {
		h.log.Error("encode online users", "err", err)
		return
	}
	for _, c := range h.registry.Handles() {
		h.deliver(c, ev.Name, data)
	}
}

// Shutdown closes every live connection. Their handlers detach them.
func (h *Hub) Shutdown() {
	for _, c := range h.registry.Handles() {
		c.close()
	}
}

package hub

import (
	"context"
	"log/slog"
	"sync"

	"busjp/internal/shell"
)

// Event announces that a collection in the store was replaced
type Event int

const (
	EventStopsLoaded Event = iota
	EventRoutesLoaded
)

func (e Event) String() string {
	switch e {
	case EventStopsLoaded:
		return "stops_loaded"
	case EventRoutesLoaded:
		return "routes_loaded"
	default:
		return "unknown"
	}
}

type Client struct {
	ID      string
	Send    chan []byte
	Session *shell.Session

	mu     sync.Mutex
	closed bool
}

func NewClient(id string, session *shell.Session, bufferSize int) *Client {
	return &Client{
		ID:      id,
		Send:    make(chan []byte, bufferSize),
		Session: session,
	}
}

// Deliver queues pre-encoded frames without blocking; frames that do not
// fit are dropped and the count is returned. Safe to call after the client
// was unregistered.
func (c *Client) Deliver(frames [][]byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return len(frames)
	}
	dropped := 0
	for _, f := range frames {
		select {
		case c.Send <- f:
		default:
			dropped++
		}
	}
	return dropped
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Hub tracks connected sessions. Register and Unregister take effect before
// they return, so a Broadcast issued afterwards always sees the change.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	stopped bool

	broadcast chan Event

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:   make(map[*Client]struct{}),
		broadcast: make(chan Event, 16),
		logger:    logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case ev := <-h.broadcast:
			h.fanout(ev)
		}
	}
}

// Broadcast tells every session that a collection changed
func (h *Hub) Broadcast(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("broadcast channel full, dropping event", "event", ev.String())
	}
}

// Register adds client. Once the hub has stopped the client is closed
// straight away.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		client.close()
		return
	}
	h.clients[client] = struct{}{}
	h.logger.Debug("client registered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.close()
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanout(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		var u shell.Update
		switch ev {
		case EventStopsLoaded:
			u = client.Session.StopsLoaded()
		case EventRoutesLoaded:
			u = client.Session.RoutesLoaded()
		}
		if u.Empty() {
			continue
		}

		frames, err := EncodeUpdate(u)
		if err != nil {
			h.logger.Error("failed to encode update", "client_id", client.ID, "error", err)
			continue
		}
		if dropped := client.Deliver(frames); dropped > 0 {
			h.logger.Debug("client send buffer full", "client_id", client.ID, "dropped", dropped)
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopped = true
	for client := range h.clients {
		client.close()
	}
	h.clients = make(map[*Client]struct{})
}

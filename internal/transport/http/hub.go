package http

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"live-quiz-service/internal/domain"
)

const sendBuffer = 64

// client is one registered websocket connection.
type client struct {
	id   string
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub tracks live connections and the game rooms they are subscribed to.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]struct{}),
	}
}

func (h *Hub) register(connectionID string) *client {
	c := &client{id: connectionID, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[connectionID] = c
	h.mu.Unlock()
	return c
}

// unregister drops the connection from every room and closes its send queue.
func (h *Hub) unregister(connectionID string) {
	h.mu.Lock()
	c, ok := h.clients[connectionID]
	delete(h.clients, connectionID)
	for gameID, members := range h.rooms {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(h.rooms, gameID)
		}
	}
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

func (h *Hub) Subscribe(gameID, connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[connectionID]; !ok {
		return
	}
	members, ok := h.rooms[gameID]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[gameID] = members
	}
	members[connectionID] = struct{}{}
}

func (h *Hub) Unsubscribe(gameID, connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[gameID]; ok {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(h.rooms, gameID)
		}
	}
}

func (h *Hub) CloseRoom(gameID string) {
	h.mu.Lock()
	delete(h.rooms, gameID)
	h.mu.Unlock()
}

func (h *Hub) Broadcast(gameID string, evt domain.Event) {
	data, ok := encode(evt)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for connectionID := range h.rooms[gameID] {
		h.enqueueLocked(connectionID, data)
	}
}

func (h *Hub) Send(connectionID string, evt domain.Event) {
	data, ok := encode(evt)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.enqueueLocked(connectionID, data)
}

// enqueueLocked never blocks: a connection whose queue is full misses the event.
func (h *Hub) enqueueLocked(connectionID string, data []byte) {
	c, ok := h.clients[connectionID]
	if !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Warn().Str("connection_id", connectionID).Msg("send queue full, dropping event")
	}
}

func encode(evt domain.Event) ([]byte, bool) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("event", string(evt.Type)).Msg("encode event")
		return nil, false
	}
	return data, true
}

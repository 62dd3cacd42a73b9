// Package websocket pushes event change notifications to connected
// browsers so open listings can refresh themselves.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

const EntityEvent = "event"

const (
	ActionSaved    = "saved"
	ActionDeleted  = "deleted"
	ActionLocked   = "locked"
	ActionUnlocked = "unlocked"
	ActionSquashed = "squashed"
)

// Message is a change notification. Related lists the other events touched
// by the change, such as the duplicates folded into a progenitor.
type Message struct {
	Type    string  `json:"type"`
	Entity  string  `json:"entity"`
	Action  string  `json:"action"`
	ID      int64   `json:"id,omitempty"`
	Related []int64 `json:"related,omitempty"`
}

// EventChanged builds the notification for an action on event id.
func EventChanged(action string, id int64, related ...int64) Message {
	return Message{
		Type:    fmt.Sprintf("%s_%s", EntityEvent, action),
		Entity:  EntityEvent,
		Action:  action,
		ID:      id,
		Related: related,
	}
}

// concerns reports whether the message touches event id.
func (m Message) concerns(id int64) bool {
	if m.ID == id {
		return true
	}
	for _, r := range m.Related {
		if r == id {
			return true
		}
	}
	return false
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	dropped int
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends msg to every client watching it. Clients whose buffer is
// full miss the message rather than block the publisher.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		if !c.wants(msg) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.dropped++
			h.logger.Warn("dropping change notification for slow client", "type", msg.Type, "id", msg.ID)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped counts notifications discarded because a client fell behind.
func (h *Hub) Dropped() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

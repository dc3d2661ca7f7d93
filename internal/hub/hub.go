package hub

import (
	"encoding/json"
	"sync"
)

// Event types published while a course is being synced.
const (
	EventSyncStarted   = "sync_started"
	EventTagsSynced    = "tags_synced"
	EventQuestionError = "question_error"
	EventSyncFinished  = "sync_finished"
	EventSyncFailed    = "sync_failed"
)

// Event represents a real-time event to be sent to clients.
type Event struct {
	Type    string      `json:"type"`
	RunID   string      `json:"run_id"`
	Payload interface{} `json:"payload,omitempty"`
}

// Client is a subscriber's buffered channel of encoded events.
// The SSE handler drains it.
type Client chan []byte

// Hub fans sync events out to the clients watching each course.
type Hub struct {
	courses map[uint]map[Client]bool
	mu      sync.RWMutex
}

// New creates a new Hub.
func New() *Hub {
	return &Hub{
		courses: make(map[uint]map[Client]bool),
	}
}

// Subscribe adds a new client to a specific course.
func (h *Hub) Subscribe(courseID uint, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.courses[courseID]; !ok {
		h.courses[courseID] = make(map[Client]bool)
	}
	h.courses[courseID][client] = true
}

// Unsubscribe removes a client from a course and closes its channel.
func (h *Hub) Unsubscribe(courseID uint, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.courses[courseID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client)
			if len(clients) == 0 {
				delete(h.courses, courseID)
			}
		}
	}
}

// Subscribers returns how many clients watch a course.
func (h *Hub) Subscribers(courseID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.courses[courseID])
}

// Broadcast sends an event to all clients of a course. Clients whose buffer
// is full miss the event.
func (h *Hub) Broadcast(courseID uint, event Event) {
	if h == nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.courses[courseID]
	if !ok {
		return
	}

	messageBytes, err := json.Marshal(event)
	if err != nil {
		return
	}

	for client := range clients {
		select {
		case client <- messageBytes:
		default:
		}
	}
}

// Close disconnects every client. Streams reading from a closed client end.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for courseID, clients := range h.courses {
		for client := range clients {
			close(client)
		}
		delete(h.courses, courseID)
	}
}

package ws

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event types pushed to chart clients.
const (
	EventSeriesReplaced = "series.replaced"
	EventSeriesCleared  = "series.cleared"
)

// Event announces a change of the current series.
type Event struct {
	Type        string    `json:"type"`
	IngestionID string    `json:"ingestion_id,omitempty"`
	Source      string    `json:"source,omitempty"`
	Records     int       `json:"records"`
	At          time.Time `json:"at"`
}

// Hub tracks subscriber connections and fans out events.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	logger      *zap.Logger
}

// NewHub builds connection hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		logger:      logger,
	}
}

// Add registers new connection.
func (h *Hub) Add(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[conn.ID()] = conn
}

// Remove removes connection.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, id)
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Broadcast sends evt to every subscriber.
func (h *Hub) Broadcast(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to encode event", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.connections {
		conn.Send(payload)
	}
	h.logger.Debug("event broadcast", zap.String("type", evt.Type), zap.Int("subscribers", len(h.connections)))
}

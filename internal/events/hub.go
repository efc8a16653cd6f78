package events

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/asura-ai/asura/internal/core"
	"github.com/asura-ai/asura/internal/models"
)

// Event types delivered to subscribers. Heartbeats are synthesized by the
// SSE handler itself, not routed through the hub.
const (
	TypeFileUpdate  = "file-update"
	TypeFileDeleted = "file-deleted"
)

// Event is one row-level change notification.
type Event struct {
	Type   string
	File   *models.FileRecord // set for file-update
	FileID string             // set for file-deleted
}

// Subscription is one listener's handle. Events arrive on C; Close detaches
// the listener and releases the channel.
type Subscription struct {
	C chan Event

	hub  *Hub
	key  string
	once sync.Once
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Hub fans row-change notifications out to per-user subscribers. It is the
// in-process stand-in for a managed realtime channel: the pipeline publishes
// after each database write, the SSE endpoint subscribes per connection.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
	log  *logrus.Logger
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscription]struct{}),
		log:  log,
	}
}

const anonymousScope = "anonymous"

func scopeKey(userID *string) string {
	if userID == nil {
		return anonymousScope
	}
	return *userID
}

// Subscribe registers a listener for one user's file events.
func (h *Hub) Subscribe(userID *string) *Subscription {
	sub := &Subscription{
		C:   make(chan Event, 16),
		hub: h,
		key: scopeKey(userID),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[sub.key] == nil {
		h.subs[sub.key] = make(map[*Subscription]struct{})
	}
	h.subs[sub.key][sub] = struct{}{}
	return sub
}

// SubscriberCount reports how many listeners are attached to one scope.
func (h *Hub) SubscriberCount(userID *string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[scopeKey(userID)])
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[sub.key]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.key)
		}
	}
	close(sub.C)
}

// PublishUpdate notifies the file owner's subscribers of an insert or update.
func (h *Hub) PublishUpdate(rec *models.FileRecord) {
	h.broadcast(scopeKey(rec.UserID), Event{Type: TypeFileUpdate, File: rec})
}

// PublishDelete notifies the owner's subscribers that a row was removed.
// Only the id travels; the row is already gone.
func (h *Hub) PublishDelete(userID *string, fileID string) {
	h.broadcast(scopeKey(userID), Event{Type: TypeFileDeleted, FileID: fileID})
}

// broadcast delivers without blocking: a subscriber that cannot keep up has
// its event dropped and logged. Disconnected clients resynchronize by
// re-fetching the list, so a dropped event is recoverable.
func (h *Hub) broadcast(key string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[key] {
		select {
		case sub.C <- ev:
		default:
			if h.log != nil {
				h.log.WithField("scope", key).Warn("slow event subscriber, dropping event")
			}
		}
	}
}

var _ core.EventPublisher = (*Hub)(nil)

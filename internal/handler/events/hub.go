// Package events fans controller events out to connected views over a
// websocket feed.
package events

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/scholarchat/gateway/internal/service/conversation"
)

const subscriberBuffer = 64

// Hub implements conversation.Sink and pushes every published event to
// all connected websocket clients. Publish never blocks: a subscriber
// that cannot keep up drops events.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[chan conversation.Event]struct{}
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		subs: make(map[chan conversation.Event]struct{}),
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Hub) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.handleWebSocket)
}

// Publish delivers the event to every subscriber without blocking.
func (h *Hub) Publish(event conversation.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub <- event:
		default:
			h.log.Debug("dropping event for slow subscriber", zap.String("type", event.Type))
		}
	}
}

func (h *Hub) subscribe() chan conversation.Event {
	sub := make(chan conversation.Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub chan conversation.Event) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.subscribe()
	defer h.unsubscribe(sub)

	// Reader goroutine detects the client going away; inbound frames are
	// ignored, the feed is one-way.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case event := <-sub:
			if err := conn.WriteJSON(event); err != nil {
				h.log.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

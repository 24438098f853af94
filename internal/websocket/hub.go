package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"gator-overflow/internal/models"
)

// RoomMessage is a payload for every client watching one question.
type RoomMessage struct {
	QuestionID string
	Payload    []byte
}

// Relay fans activity out to every server instance, this one included.
type Relay interface {
	Publish(ctx context.Context, activity models.Activity) error
}

// Subscriber is a Relay that also receives what every instance publishes.
// Listen calls ready once the subscription is live.
type Subscriber interface {
	Relay
	Listen(ctx context.Context, deliver func(models.Activity), ready func()) error
}

// Hub maintains the set of active clients grouped into one room per question.
type Hub struct {
	// Registered clients. Maps question ID to the clients watching it.
	Rooms map[string]map[*Client]bool

	// Messages to deliver to a room.
	Deliver chan *RoomMessage

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	relay   Relay
	relayMu sync.RWMutex
	done    chan struct{}

	// Mutex to protect concurrent access to the rooms map.
	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		Deliver:    make(chan *RoomMessage, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Rooms:      make(map[string]map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// UseRelay routes published activity through relay instead of delivering it
// straight to local rooms. The relay is expected to call DeliverActivity on
// every instance.
func (h *Hub) UseRelay(relay Relay) {
	h.relayMu.Lock()
	h.relay = relay
	h.relayMu.Unlock()
}

// RunRelay listens on relay and routes published activity through it only
// after the subscription is confirmed. Once Listen returns, published
// activity is delivered locally again.
func (h *Hub) RunRelay(ctx context.Context, relay Subscriber) error {
	defer h.UseRelay(nil)
	return relay.Listen(ctx, h.DeliverActivity, func() { h.UseRelay(relay) })
}

// Run starts the hub's processing loop. It returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log.Println("WebSocket Hub started.")
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			log.Println("WebSocket Hub stopped.")
			return

		case client := <-h.Register:
			h.mu.Lock()
			if _, ok := h.Rooms[client.QuestionID]; !ok {
				h.Rooms[client.QuestionID] = make(map[*Client]bool)
			}
			h.Rooms[client.QuestionID][client] = true
			log.Printf("WebSocket Client registered for question %s. Watchers: %d", client.QuestionID, len(h.Rooms[client.QuestionID]))
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if room, ok := h.Rooms[client.QuestionID]; ok {
				if _, clientOk := room[client]; clientOk {
					delete(room, client)
					close(client.Send)
					if len(room) == 0 {
						delete(h.Rooms, client.QuestionID)
					}
					log.Printf("WebSocket Client unregistered for question %s. Remaining watchers: %d", client.QuestionID, len(room))
				}
			}
			h.mu.Unlock()

		case message := <-h.Deliver:
			h.mu.RLock()
			for client := range h.Rooms[message.QuestionID] {
				select {
				case client.Send <- message.Payload:
				default:
					log.Printf("Send buffer full for a watcher of question %s. Message dropped.", message.QuestionID)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, room := range h.Rooms {
		for client := range room {
			close(client.Send)
		}
		delete(h.Rooms, id)
	}
}

// Publish implements the question actor's activity publisher. It never
// blocks the caller for longer than a second.
func (h *Hub) Publish(activity models.Activity) {
	h.relayMu.RLock()
	relay := h.relay
	h.relayMu.RUnlock()

	if relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err := relay.Publish(ctx, activity)
		if err == nil {
			return
		}
		log.Printf("Relay publish failed, delivering locally: %v", err)
	}
	h.DeliverActivity(activity)
}

// DeliverActivity queues activity for the local watchers of its question.
func (h *Hub) DeliverActivity(activity models.Activity) {
	payload, err := json.Marshal(activity)
	if err != nil {
		log.Printf("Failed to encode activity for question %s: %v", activity.QuestionID, err)
		return
	}

	select {
	case h.Deliver <- &RoomMessage{QuestionID: activity.QuestionID, Payload: payload}:
	case <-h.done:
	case <-time.After(1 * time.Second):
		log.Printf("Timeout queuing activity for question %s. Hub might be busy or blocked.", activity.QuestionID)
	}
}

// Join registers c. It reports false when the hub has shut down.
func (h *Hub) Join(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters c unless the hub has already shut down.
func (h *Hub) leave(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

// Watchers returns the number of clients watching questionID.
func (h *Hub) Watchers(questionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Rooms[questionID])
}

// ClientCount returns the number of connected clients across all rooms.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, room := range h.Rooms {
		n += len(room)
	}
	return n
}

package progress

import "sync"

// Hub fans events out to subscribed channels. Slow subscribers are
// dropped rather than allowed to stall the pipeline.
type Hub struct {
	clients    map[chan Event]bool
	broadcast  chan Event
	register   chan chan Event
	unregister chan chan Event
	done       chan struct{}
	once       sync.Once
	mu         sync.RWMutex
}

// NewHub creates a new event hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[chan Event]bool),
		broadcast:  make(chan Event, 64),
		register:   make(chan chan Event),
		unregister: make(chan chan Event),
		done:       make(chan struct{}),
	}
}

// Run starts the hub loop; call in a goroutine
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client <- event:
				default:
					close(client)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop shuts down the hub and closes all subscriber channels
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Subscribe registers a new subscriber channel
func (h *Hub) Subscribe() chan Event {
	client := make(chan Event, 32)
	h.register <- client
	return client
}

// Unsubscribe removes a subscriber channel
func (h *Hub) Unsubscribe(client chan Event) {
	h.unregister <- client
}

// Emit implements Sink. Events are dropped if the hub's buffer is full
// so the pipeline never blocks on observers.
func (h *Hub) Emit(e Event) {
	select {
	case h.broadcast <- e:
	default:
	}
}

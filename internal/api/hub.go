package api

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
)

const hubBuffer = 256

// Hub keeps the set of connected websocket clients and fans messages out
// to them. A client that cannot keep up is dropped.
type Hub struct {
	logger zerolog.Logger

	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	unicast    chan envelope
	count      chan chan int
	done       chan struct{}
}

type envelope struct {
	to  *Client
	msg []byte
}

// NewHub creates a hub. Run must be started before clients connect.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:     logger.With().Str("component", "hub").Logger(),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, hubBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		unicast:    make(chan envelope, hubBuffer),
		count:      make(chan chan int),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns when ctx is cancelled, closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Info().Str("client", c.id).Int("clients", len(h.clients)).Msg("client connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				h.logger.Info().Str("client", c.id).Int("clients", len(h.clients)).Msg("client disconnected")
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
					h.logger.Warn().Str("client", c.id).Msg("dropping slow client")
				}
			}

		case e := <-h.unicast:
			if _, ok := h.clients[e.to]; ok {
				select {
				case e.to.send <- e.msg:
				default:
				}
			}

		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// Broadcast queues msg for every client. It never blocks; when the queue
// is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("marshal message")
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.logger.Debug().Str("type", msg.Type).Msg("broadcast queue full, dropping")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// sendTo queues msg for one client. Messages for departed clients are
// discarded by the hub.
func (h *Hub) sendTo(c *Client, msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.unicast <- envelope{to: c, msg: b}:
	case <-h.done:
	}
}

// registerClient reports false once the hub has stopped.
func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

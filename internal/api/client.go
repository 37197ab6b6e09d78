package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/satindergrewal/sonora/internal/gesture"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Client is one websocket connection. It receives hub broadcasts and feeds
// its own touch samples into a private gesture interpreter.
type Client struct {
	id      string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	gesture *gesture.Interpreter
	config  func() gesture.Config
	logger  zerolog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, controls gesture.Controls, config func() gesture.Config, logger zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:      id,
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		gesture: gesture.NewInterpreter(controls, config()),
		config:  config,
		logger:  logger.With().Str("client", id).Logger(),
	}
}

// readPump reads touch messages until the connection closes.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read")
			}
			return
		}
		var msg TouchMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.sendTo(c, Message{Type: MsgError, Data: "invalid message"})
			continue
		}
		if reply, ok := c.handleTouch(msg); ok {
			c.hub.sendTo(c, reply)
		}
	}
}

// handleTouch drives the client's interpreter and returns the reply, if any.
func (c *Client) handleTouch(msg TouchMessage) (Message, bool) {
	switch msg.Type {
	case TouchStart:
		c.gesture.SetConfig(c.config())
		c.gesture.Begin(msg.Points, msg.Center)
	case TouchMove:
		r := c.gesture.Move(msg.Points)
		return Message{Type: MsgGesture, Data: newGestureDTO(r)}, true
	case TouchEnd:
		c.gesture.End()
	default:
		return Message{Type: MsgError, Data: "unknown message type " + msg.Type}, true
	}
	return Message{}, false
}

// writePump delivers queued messages and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug().Err(err).Msg("websocket write")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

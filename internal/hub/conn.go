package hub

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordle-live/internal/protocol"
)

// connection is a middleman between the websocket connection and the hub.
type connection struct {
	id     uint64
	h      *Hub
	roomID string
	actor  string

	// Buffered channel of outbound messages.
	send chan []byte

	ws       *websocket.Conn
	onIntent IntentFunc
}

// readPump pumps intents from the websocket connection to the room.
func (c *connection) readPump() {
	defer func() {
		select {
		case c.h.unregister <- c:
		case <-c.h.quit:
		}
		_ = c.ws.Close()
	}()
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("room", c.roomID).Str("actor", c.actor).Msg("read")
			}
			return
		}
		in, err := protocol.DecodeIntent(msg)
		if err != nil {
			log.Debug().Err(err).Str("room", c.roomID).Str("actor", c.actor).Msg("bad intent")
			continue
		}
		// The connection's identity always wins over a claimed actor.
		in.Actor = c.actor
		if c.onIntent != nil {
			c.onIntent(c.roomID, in)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

// write writes a message with the given message type and payload.
func (c *connection) write(mt int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	err := c.ws.WriteMessage(mt, payload)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		log.Debug().Err(err).Str("room", c.roomID).Str("actor", c.actor).Msg("write")
	}
	return err
}

// Package hub fans room messages out to WebSocket connections and feeds
// inbound intents from those connections back to the room authority.
package hub

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/wordle-live/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound message size; intents are tiny.
	maxMessageSize = 4096

	// Per-connection outbound queue. A connection that falls this far behind is dropped.
	sendBuffer = 256
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("hub: closed")

// IntentFunc receives every valid intent read from a connection, with Actor
// already set to the connection's identity.
type IntentFunc func(roomID string, in protocol.Intent)

// Hub maintains the set of active connections and broadcasts messages to the
// connections.
type Hub struct {
	// Registered connections, by room.
	connections map[string][]*connection

	// Messages to send to everyone in a room.
	broadcast chan *broadcastMsg

	// Messages to send to a single actor in a room.
	user chan *userMsg

	// Register requests from the connections.
	register chan *connection

	// Unregister requests from connections.
	unregister chan *connection

	// Observer count queries.
	count chan *countReq

	// Rooms whose connections should all be dropped.
	closeRoom chan string

	quit   chan struct{}
	closed atomic.Bool
	nextID atomic.Uint64
}

// New creates a new Hub and starts it in a background Go routine.
func New() *Hub {
	h := &Hub{
		connections: make(map[string][]*connection),
		broadcast:   make(chan *broadcastMsg),
		user:        make(chan *userMsg),
		register:    make(chan *connection),
		unregister:  make(chan *connection),
		count:       make(chan *countReq),
		closeRoom:   make(chan string),
		quit:        make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.quit:
			for roomID := range h.connections {
				h.dropRoom(roomID)
			}
			return
		case c := <-h.register:
			h.connections[c.roomID] = append(h.connections[c.roomID], c)
			log.Debug().Str("room", c.roomID).Str("actor", c.actor).Msg("connection registered")
		case c := <-h.unregister:
			h.deleteConn(c)
		case m := <-h.broadcast:
			for _, c := range h.snapshot(m.roomID) {
				h.enqueue(c, m.msg)
			}
		case m := <-h.user:
			for _, c := range h.snapshot(m.roomID) {
				if c.actor == m.actor {
					h.enqueue(c, m.msg)
				}
			}
		case q := <-h.count:
			q.reply <- len(h.connections[q.roomID])
		case roomID := <-h.closeRoom:
			h.dropRoom(roomID)
		}
	}
}

// snapshot copies a room's connection list so deleteConn can run while iterating.
func (h *Hub) snapshot(roomID string) []*connection {
	return append([]*connection(nil), h.connections[roomID]...)
}

// enqueue never blocks the hub: a full queue drops the connection.
func (h *Hub) enqueue(c *connection, msg []byte) {
	select {
	case c.send <- msg:
	default:
		log.Warn().Str("room", c.roomID).Str("actor", c.actor).Msg("send queue full; dropping connection")
		h.deleteConn(c)
	}
}

// deleteConn removes c and closes its send queue, once.
func (h *Hub) deleteConn(c *connection) {
	rconns := h.connections[c.roomID]
	for i, rconn := range rconns {
		if rconn.id == c.id {
			close(c.send)
			copy(rconns[i:], rconns[i+1:])
			rconns[len(rconns)-1] = nil
			rconns = rconns[:len(rconns)-1]
			if len(rconns) == 0 {
				delete(h.connections, c.roomID)
			} else {
				h.connections[c.roomID] = rconns
			}
			return
		}
	}
}

func (h *Hub) dropRoom(roomID string) {
	for _, c := range h.connections[roomID] {
		close(c.send)
	}
	delete(h.connections, roomID)
}

type broadcastMsg struct {
	roomID string
	msg    []byte
}

type userMsg struct {
	roomID string
	actor  string
	msg    []byte
}

type countReq struct {
	roomID string
	reply  chan int
}

func encode(msg any) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return buf.Bytes(), nil
}

// Broadcast sends a message to everyone in a room.
func (h *Hub) Broadcast(roomID string, msg any) error {
	b, err := encode(msg)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- &broadcastMsg{roomID: roomID, msg: b}:
		return nil
	case <-h.quit:
		return ErrClosed
	}
}

// ToActor sends a message to every connection of one actor in a room.
func (h *Hub) ToActor(roomID, actor string, msg any) error {
	b, err := encode(msg)
	if err != nil {
		return err
	}
	select {
	case h.user <- &userMsg{roomID: roomID, actor: actor, msg: b}:
		return nil
	case <-h.quit:
		return ErrClosed
	}
}

// Count returns the number of connections watching a room.
func (h *Hub) Count(roomID string) int {
	q := &countReq{roomID: roomID, reply: make(chan int, 1)}
	select {
	case h.count <- q:
		return <-q.reply
	case <-h.quit:
		return 0
	}
}

// CloseRoom disconnects every connection of a room.
func (h *Hub) CloseRoom(roomID string) {
	select {
	case h.closeRoom <- roomID:
	case <-h.quit:
	}
}

// Close disconnects everyone and stops the hub.
func (h *Hub) Close() {
	if h.closed.CompareAndSwap(false, true) {
		close(h.quit)
	}
}

// Register associates a connection with the hub and a room. It returns once
// the connection is registered, so messages sent afterwards reach it.
func (h *Hub) Register(ws *websocket.Conn, roomID, actor string, onIntent IntentFunc) error {
	conn := &connection{
		id:       h.nextID.Add(1),
		h:        h,
		roomID:   roomID,
		actor:    actor,
		send:     make(chan []byte, sendBuffer),
		ws:       ws,
		onIntent: onIntent,
	}
	select {
	case h.register <- conn:
	case <-h.quit:
		return ErrClosed
	}
	go conn.writePump()
	go conn.readPump()
	return nil
}

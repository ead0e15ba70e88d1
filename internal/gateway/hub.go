package gateway

import (
	"sync"

	"go.uber.org/zap"

	"github.com/surajperamanu/the-real-chess-app/internal/clock"
	"github.com/surajperamanu/the-real-chess-app/internal/obslog"
	"github.com/surajperamanu/the-real-chess-app/internal/room"
	"github.com/surajperamanu/the-real-chess-app/internal/rules"
	"github.com/surajperamanu/the-real-chess-app/pkg/wire"
)

// client is the hub's handle on one connection: a buffered egress queue
// drained by the connection's writer goroutine. send never blocks; a client
// that cannot keep up is closed instead.
type client struct {
	id        string
	egress    chan wire.ServerMessage
	closeSlow func()
}

func newClient(id string, buffer int, closeSlow func()) *client {
	if closeSlow == nil {
		closeSlow = func() {}
	}
	return &client{
		id:        id,
		egress:    make(chan wire.ServerMessage, buffer),
		closeSlow: closeSlow,
	}
}

func (c *client) send(msg wire.ServerMessage) {
	select {
	case c.egress <- msg:
	default:
		obslog.L().Warn("gateway_client_too_slow", zap.String("conn", c.id))
		c.closeSlow()
	}
}

// Hub fans room events out to the connections joined to each room. It is the
// rooms' event sink: Publish is called while a room's lock is held, so it
// must never call back into the room and never block.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*client
	seats map[string]map[rules.Seat]string
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[string]map[string]*client),
		seats: make(map[string]map[rules.Seat]string),
	}
}

// Register adds a connection to a room's audience. It must happen before the
// join is executed so activation broadcasts reach the joiner.
func (h *Hub) Register(roomID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*client)
	}
	h.rooms[roomID][c.id] = c
}

// BindSeat records which connection holds a seat, for unicast events.
func (h *Hub) BindSeat(roomID string, seat rules.Seat, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seats[roomID] == nil {
		h.seats[roomID] = make(map[rules.Seat]string)
	}
	h.seats[roomID][seat] = connID
}

// Unregister drops one connection from a room's audience and any seat it held.
func (h *Hub) Unregister(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns := h.rooms[roomID]; conns != nil {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
	if seats := h.seats[roomID]; seats != nil {
		for seat, id := range seats {
			if id == connID {
				delete(seats, seat)
			}
		}
		if len(seats) == 0 {
			delete(h.seats, roomID)
		}
	}
}

// DropRoom removes a room's entire audience, for explicit teardowns.
func (h *Hub) DropRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, roomID)
	delete(h.seats, roomID)
}

// Publish implements room.Sink, translating a room event into wire messages
// for the room's audience. Events with a target seat go only to that seat's
// connection.
func (h *Hub) Publish(ev room.Event) {
	msg, ok := translate(ev)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if ev.Only != "" {
		connID, bound := h.seats[ev.Room][ev.Only]
		if !bound {
			return
		}
		if c, live := h.rooms[ev.Room][connID]; live {
			c.send(msg)
		}
		return
	}
	for _, c := range h.rooms[ev.Room] {
		c.send(msg)
	}
}

func translate(ev room.Event) (wire.ServerMessage, bool) {
	switch ev.Type {
	case room.EventGameStart:
		return wire.ServerMessage{Type: wire.TypeGameStart, Payload: wire.GameStartPayload{
			RoomID: ev.Room, White: ev.White, Black: ev.Black, Clock: clockToWire(ev.Clock),
		}}, true
	case room.EventMoveApplied:
		return wire.ServerMessage{Type: wire.TypeMoveApplied, Payload: wire.MoveAppliedPayload{
			RoomID: ev.Room, FEN: ev.FEN, Move: ev.Move, Clock: clockToWire(ev.Clock),
		}}, true
	case room.EventGameOver:
		return wire.ServerMessage{Type: wire.TypeGameOver, Payload: wire.GameOverPayload{
			RoomID: ev.Room, Result: ev.Result,
		}}, true
	case room.EventPlayerDisconnected:
		return wire.ServerMessage{Type: wire.TypePlayerDisconnected, Payload: wire.PlayerDisconnectedPayload{
			RoomID: ev.Room, Seat: string(ev.Seat),
		}}, true
	case room.EventDrawOffered:
		return wire.ServerMessage{Type: wire.TypeDrawOffered, Payload: wire.DrawOfferedPayload{
			RoomID: ev.Room, From: string(ev.Seat),
		}}, true
	case room.EventDrawWarning:
		return wire.ServerMessage{Type: wire.TypeDrawWarning, Payload: wire.NoticePayload{
			RoomID: ev.Room, Message: ev.Notice,
		}}, true
	case room.EventDrawDisabled:
		return wire.ServerMessage{Type: wire.TypeDrawDisabled, Payload: wire.NoticePayload{
			RoomID: ev.Room, Message: ev.Notice,
		}}, true
	default:
		return wire.ServerMessage{}, false
	}
}

func clockToWire(s *clock.Snapshot) wire.ClockPayload {
	if s == nil {
		return wire.ClockPayload{}
	}
	return wire.ClockPayload{White: s.White, Black: s.Black, Initial: s.Initial, Increment: s.Increment}
}

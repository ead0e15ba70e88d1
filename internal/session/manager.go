// Package session binds live connections to a room seat. Rooms only ever see
// session tokens; the connection identity lives here, so a client can drop
// its transport and reclaim the same seat with the token it was issued.
package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/surajperamanu/the-real-chess-app/internal/clock"
	"github.com/surajperamanu/the-real-chess-app/internal/obslog"
	"github.com/surajperamanu/the-real-chess-app/internal/registry"
	"github.com/surajperamanu/the-real-chess-app/internal/rules"
)

var ErrNoSession = errors.New("connection has no active session")

// Binding ties one connection to its seat in a room.
type Binding struct {
	RoomID string
	Seat   rules.Seat
	Token  string
}

// JoinResult is everything a joiner needs to render the board and, later,
// reconnect.
type JoinResult struct {
	RoomID string
	Seat   rules.Seat
	Token  string
	FEN    string
	Clock  clock.Snapshot
}

// Manager is safe for concurrent use.
type Manager struct {
	rooms *registry.Registry

	mu       sync.Mutex
	bindings map[string]Binding
}

func NewManager(rooms *registry.Registry) *Manager {
	return &Manager{
		rooms:    rooms,
		bindings: make(map[string]Binding),
	}
}

// Join seats the connection in the room. An empty token means a fresh
// session; a presented token reclaims a vacated seat when it matches.
func (m *Manager) Join(connID, roomID, token string, wantsCreatorSeat bool) (*JoinResult, error) {
	r, err := m.rooms.Get(roomID)
	if err != nil {
		return nil, err
	}
	if token == "" {
		token = uuid.NewString()
	}
	info, err := r.Join(token, wantsCreatorSeat)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.bindings[connID] = Binding{RoomID: roomID, Seat: info.Seat, Token: token}
	m.mu.Unlock()

	obslog.L().Info("session_join",
		zap.String("room", roomID),
		zap.String("seat", string(info.Seat)),
	)
	return &JoinResult{
		RoomID: roomID,
		Seat:   info.Seat,
		Token:  token,
		FEN:    info.FEN,
		Clock:  info.Clock,
	}, nil
}

// Resolve returns the binding for a connection, for dispatching in-game
// messages.
func (m *Manager) Resolve(connID string) (Binding, error) {
	m.mu.Lock()
	b, ok := m.bindings[connID]
	m.mu.Unlock()
	if !ok {
		return Binding{}, ErrNoSession
	}
	return b, nil
}

// Disconnect drops the binding and vacates the seat, opening the room's
// reconnection window. Connections that never joined are ignored.
func (m *Manager) Disconnect(connID string) {
	b, ok := m.take(connID)
	if !ok {
		return
	}
	if r, err := m.rooms.Get(b.RoomID); err == nil {
		r.Disconnect(b.Token)
	}
	obslog.L().Info("session_disconnect",
		zap.String("room", b.RoomID),
		zap.String("seat", string(b.Seat)),
	)
}

// Leave is an explicit departure: the binding is dropped and the whole room
// is torn down, with no reconnection window for either side.
func (m *Manager) Leave(connID string) {
	b, ok := m.take(connID)
	if !ok {
		return
	}
	m.rooms.Remove(b.RoomID)
	obslog.L().Info("session_leave",
		zap.String("room", b.RoomID),
		zap.String("seat", string(b.Seat)),
	)
}

func (m *Manager) take(connID string) (Binding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[connID]
	if ok {
		delete(m.bindings, connID)
	}
	return b, ok
}

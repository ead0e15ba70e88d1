package room

import (
	"github.com/surajperamanu/the-real-chess-app/internal/clock"
	"github.com/surajperamanu/the-real-chess-app/internal/rules"
)

// EventType names a state change a room announces.
type EventType string

const (
	EventGameStart          EventType = "gameStart"
	EventMoveApplied        EventType = "moveApplied"
	EventGameOver           EventType = "gameOver"
	EventPlayerDisconnected EventType = "playerDisconnected"
	EventDrawOffered        EventType = "drawOffered"
	EventDrawWarning        EventType = "drawWarning"
	EventDrawDisabled       EventType = "drawDisabled"
)

// Event is what a room publishes after a successful transition. Only, when
// set, restricts delivery to a single seat's connection; otherwise the event
// is for everyone joined to the room.
type Event struct {
	Room string
	Type EventType
	Only rules.Seat

	Seat   rules.Seat
	FEN    string
	Move   string
	Clock  *clock.Snapshot
	Result string
	Notice string
	White  string
	Black  string
}

// Sink receives room events. Implementations must not call back into the
// room and must not block; events are published while the room lock is held.
type Sink interface {
	Publish(Event)
}

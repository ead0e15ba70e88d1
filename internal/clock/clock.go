// Package clock tracks per-player countdown state for one game.
//
// The server is not the timekeeper: the authoritative remaining time for a
// seat is whatever that seat last reported when completing a move, credited
// with the room's increment. Between moves a seat's remaining time is frozen.
package clock

import (
	"errors"

	"github.com/surajperamanu/the-real-chess-app/internal/rules"
)

// ErrBadReport rejects a negative self-reported remaining time.
var ErrBadReport = errors.New("reported remaining time must be non-negative")

// Snapshot is a value copy of the clock state, in seconds, as sent on the wire.
type Snapshot struct {
	White     float64 `json:"white"`
	Black     float64 `json:"black"`
	Initial   float64 `json:"initial"`
	Increment float64 `json:"increment"`
}

// Clock holds both seats' remaining time. Not safe for concurrent use; the
// owning room serializes access.
type Clock struct {
	initial   float64
	increment float64
	white     float64
	black     float64
}

// New seeds both seats with the initial time, in seconds.
func New(initial, increment float64) *Clock {
	return &Clock{initial: initial, increment: increment, white: initial, black: initial}
}

// CreditMove records the mover's self-reported remaining time plus the
// increment. The opponent's remaining time is untouched; it was already
// frozen when the turn passed.
func (c *Clock) CreditMove(seat rules.Seat, reported float64) error {
	if reported < 0 {
		return ErrBadReport
	}
	c.set(seat, reported+c.increment)
	return nil
}

// Remaining reports the stored remaining time for a seat.
func (c *Clock) Remaining(seat rules.Seat) float64 {
	if seat == rules.SeatWhite {
		return c.white
	}
	return c.black
}

// FlagPlausible reports whether a self-reported flag-fall for the seat is
// acceptable. Wall-clock accounting is advisory and client-reported, so the
// only verification is that the stored state has not been corrupted.
func (c *Clock) FlagPlausible(seat rules.Seat) bool {
	return c.Remaining(seat) >= 0
}

func (c *Clock) Snapshot() Snapshot {
	return Snapshot{White: c.white, Black: c.black, Initial: c.initial, Increment: c.increment}
}

func (c *Clock) set(seat rules.Seat, v float64) {
	if seat == rules.SeatWhite {
		c.white = v
		return
	}
	c.black = v
}

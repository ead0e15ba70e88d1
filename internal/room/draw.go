package room

import "github.com/surajperamanu/the-real-chess-app/internal/rules"

// drawState implements the offer-escalation rules: a seat's counter resets to
// one whenever it becomes the latest offerer after the opponent offered, and
// climbs only on consecutive offers. Reaching three bars the seat for the
// rest of the game, even if the opponent offers in between.
type drawState struct {
	counts      map[rules.Seat]int
	lastOfferer rules.Seat
	barred      map[rules.Seat]bool
}

type drawOutcome struct {
	forward bool
	warn    bool
	disable bool
}

func newDrawState() drawState {
	return drawState{
		counts: make(map[rules.Seat]int),
		barred: make(map[rules.Seat]bool),
	}
}

func (d *drawState) isBarred(seat rules.Seat) bool { return d.barred[seat] }

func (d *drawState) offer(seat rules.Seat) drawOutcome {
	if d.lastOfferer == seat {
		d.counts[seat]++
	} else {
		d.counts[seat] = 1
		d.lastOfferer = seat
	}
	switch {
	case d.counts[seat] >= 3:
		d.barred[seat] = true
		return drawOutcome{disable: true}
	case d.counts[seat] == 2:
		return drawOutcome{forward: true, warn: true}
	default:
		return drawOutcome{forward: true}
	}
}

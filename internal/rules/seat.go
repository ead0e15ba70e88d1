package rules

// Seat identifies one of the two competing sides in a room.
type Seat string

const (
	SeatWhite Seat = "white"
	SeatBlack Seat = "black"
)

func (s Seat) Valid() bool { return s == SeatWhite || s == SeatBlack }

func (s Seat) Opponent() Seat {
	if s == SeatWhite {
		return SeatBlack
	}
	return SeatWhite
}

// Label returns the capitalized display name used in result texts.
func (s Seat) Label() string {
	if s == SeatWhite {
		return "White"
	}
	return "Black"
}

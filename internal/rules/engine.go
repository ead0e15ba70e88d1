package rules

import (
	"errors"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// ErrIllegalMove is returned when a move cannot be applied to the current
// position. The position is left untouched.
var ErrIllegalMove = errors.New("illegal move")

// Termination classifies a position's terminal state.
type Termination string

const (
	NotTerminal Termination = ""
	WhiteWins   Termination = "white"
	BlackWins   Termination = "black"
	Drawn       Termination = "draw"
)

// Verdict carries the terminal classification of a position together with the
// method that produced it (checkmate, stalemate, fifty_move_rule, ...).
type Verdict struct {
	Termination Termination
	Method      string
}

func (v Verdict) Terminal() bool { return v.Termination != NotTerminal }

// Position is the room's opaque handle on the rules engine's game state.
// Callers never see the underlying library types.
type Position struct {
	game *nchess.Game
}

// NewPosition returns the standard starting position.
func NewPosition() *Position {
	return &Position{game: nchess.NewGame()}
}

// FEN returns the canonical board-state string.
func (p *Position) FEN() string { return p.game.FEN() }

// Turn reports the seat to move.
func (p *Position) Turn() Seat {
	if p.game.Position().Turn() == nchess.White {
		return SeatWhite
	}
	return SeatBlack
}

// MoveCount reports the number of half-moves applied so far.
func (p *Position) MoveCount() int { return len(p.game.Moves()) }

// Apply plays a move against the position. UCI notation is tried first, with
// a SAN fallback, matching what clients are allowed to send. On success the
// SAN rendering of the move is returned; on failure ErrIllegalMove is
// returned and the position is unchanged.
func (p *Position) Apply(move string) (string, error) {
	raw := strings.TrimSpace(move)
	if raw == "" {
		return "", ErrIllegalMove
	}
	pos := p.game.Position()
	if mv, err := (nchess.UCINotation{}).Decode(pos, strings.ToLower(raw)); err == nil {
		if err := p.game.Move(mv, nil); err != nil {
			return "", ErrIllegalMove
		}
		return nchess.AlgebraicNotation{}.Encode(pos, mv), nil
	}
	if err := p.game.PushNotationMove(raw, nchess.AlgebraicNotation{}, nil); err != nil {
		return "", ErrIllegalMove
	}
	moves := p.game.Moves()
	return nchess.AlgebraicNotation{}.Encode(pos, moves[len(moves)-1]), nil
}

// Verdict reports the engine's terminal-state classification for the current
// position. The draw method is surfaced so callers can render finer-grained
// result texts; the coarse classification is what drives the room lifecycle.
func (p *Position) Verdict() Verdict {
	switch p.game.Outcome() {
	case nchess.WhiteWon:
		return Verdict{Termination: WhiteWins, Method: methodName(p.game.Method())}
	case nchess.BlackWon:
		return Verdict{Termination: BlackWins, Method: methodName(p.game.Method())}
	case nchess.Draw:
		return Verdict{Termination: Drawn, Method: methodName(p.game.Method())}
	default:
		return Verdict{}
	}
}

func methodName(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Stalemate:
		return "stalemate"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	case nchess.FiftyMoveRule, nchess.SeventyFiveMoveRule:
		return "fifty_move_rule"
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return "repetition"
	default:
		return strings.ToLower(m.String())
	}
}

// Package room holds the aggregate state machine for one game: seating,
// position, clocks, draw negotiation and termination. All operations on a
// room are serialized by its mutex; operations on different rooms proceed in
// parallel.
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/surajperamanu/the-real-chess-app/internal/clock"
	"github.com/surajperamanu/the-real-chess-app/internal/msgcat"
	"github.com/surajperamanu/the-real-chess-app/internal/obslog"
	"github.com/surajperamanu/the-real-chess-app/internal/rules"
)

var (
	ErrRoomFull        = errors.New("room is full")
	ErrNotActive       = errors.New("game is not active")
	ErrGameFinished    = errors.New("game is finished")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrDrawDisabled    = errors.New("draw offers disabled")
	ErrImplausibleFlag = errors.New("flag-fall not plausible")
)

// Phase is the room lifecycle state. It only ever moves forward.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseActive   Phase = "active"
	PhaseFinished Phase = "finished"
)

var seatOrder = [2]rules.Seat{rules.SeatWhite, rules.SeatBlack}

// seatState tracks one side of the board. A seat is unassigned when both
// occupant and vacatedToken are empty; it is never both occupied and vacated.
type seatState struct {
	occupant     string
	vacatedToken string
	vacatedAt    time.Time
}

// Config wires a room's collaborators. Wall defaults to the real clock.
type Config struct {
	Code            string
	Initial         float64
	Increment       float64
	ReconnectWindow time.Duration
	Wall            clockwork.Clock
	Sink            Sink
	Messages        *msgcat.Catalog
	// OnTerminated fires after a reconnection window expires and the room
	// finishes itself; the registry uses it to drop the room.
	OnTerminated func(code string)
}

type Room struct {
	code            string
	reconnectWindow time.Duration
	wall            clockwork.Clock
	sink            Sink
	messages        *msgcat.Catalog
	onTerminated    func(string)

	mu           sync.Mutex
	phase        Phase
	seats        map[rules.Seat]*seatState
	pos          *rules.Position
	clk          *clock.Clock
	draw         drawState
	cancels      map[rules.Seat]chan struct{}
	lastActivity time.Time
}

// JoinInfo is returned to a successful joiner.
type JoinInfo struct {
	Seat  rules.Seat
	FEN   string
	Clock clock.Snapshot
}

// MoveInfo is returned to a successful mover.
type MoveInfo struct {
	FEN   string
	SAN   string
	Clock clock.Snapshot
}

func New(cfg Config) *Room {
	wall := cfg.Wall
	if wall == nil {
		wall = clockwork.NewRealClock()
	}
	return &Room{
		code:            cfg.Code,
		reconnectWindow: cfg.ReconnectWindow,
		wall:            wall,
		sink:            cfg.Sink,
		messages:        cfg.Messages,
		onTerminated:    cfg.OnTerminated,
		phase:           PhaseWaiting,
		seats: map[rules.Seat]*seatState{
			rules.SeatWhite: {},
			rules.SeatBlack: {},
		},
		pos:          rules.NewPosition(),
		clk:          clock.New(cfg.Initial, cfg.Increment),
		draw:         newDrawState(),
		cancels:      make(map[rules.Seat]chan struct{}),
		lastActivity: wall.Now(),
	}
}

func (r *Room) Code() string { return r.code }

func (r *Room) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Room) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

// Join seats the holder of token, preferring in order: reconnection to a
// vacated seat, the creator seat, then any seat that is neither occupied nor
// reserved for a disconnected player.
func (r *Room) Join(token string, wantsCreatorSeat bool) (*JoinInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == PhaseFinished {
		return nil, ErrGameFinished
	}

	for _, seat := range seatOrder {
		ss := r.seats[seat]
		if ss.vacatedToken != "" && ss.vacatedToken == token {
			ss.occupant = token
			ss.vacatedToken = ""
			ss.vacatedAt = time.Time{}
			r.cancelReconnect(seat)
			r.touch()
			obslog.L().Info("room_rejoin", zap.String("room", r.code), zap.String("seat", string(seat)))
			return r.joinInfo(seat), nil
		}
	}

	for _, seat := range seatOrder {
		if r.seats[seat].occupant == token {
			return r.joinInfo(seat), nil
		}
	}

	var seat rules.Seat
	switch {
	case wantsCreatorSeat && r.unassigned(rules.SeatWhite):
		seat = rules.SeatWhite
	case r.unassigned(rules.SeatWhite):
		seat = rules.SeatWhite
	case r.unassigned(rules.SeatBlack):
		seat = rules.SeatBlack
	default:
		return nil, ErrRoomFull
	}

	r.seats[seat].occupant = token
	r.touch()
	obslog.L().Info("room_join", zap.String("room", r.code), zap.String("seat", string(seat)))

	if r.phase == PhaseWaiting && r.occupied(rules.SeatWhite) && r.occupied(rules.SeatBlack) {
		r.phase = PhaseActive
		snap := r.clk.Snapshot()
		r.publish(Event{
			Room:  r.code,
			Type:  EventGameStart,
			White: publicID(r.seats[rules.SeatWhite].occupant),
			Black: publicID(r.seats[rules.SeatBlack].occupant),
			Clock: &snap,
		})
		obslog.L().Info("room_active", zap.String("room", r.code))
	}
	return r.joinInfo(seat), nil
}

// Disconnect vacates the seat held by token and starts the reconnection
// window. If the window elapses before the same token rejoins, the room is
// force-terminated with the loss attributed to the vacated seat.
func (r *Room) Disconnect(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, seat := range seatOrder {
		ss := r.seats[seat]
		if ss.occupant != token {
			continue
		}
		ss.occupant = ""
		if r.phase == PhaseFinished {
			return
		}
		ss.vacatedToken = token
		ss.vacatedAt = r.wall.Now()
		r.publish(Event{Room: r.code, Type: EventPlayerDisconnected, Seat: seat})
		r.startReconnectTimer(seat, token)
		obslog.L().Info("room_seat_vacated", zap.String("room", r.code), zap.String("seat", string(seat)))
		return
	}
}

// ApplyMove delegates the move to the rules engine and, on success, credits
// the mover's reported remaining time plus the increment. The opponent's
// clock is untouched. Rejected moves change nothing.
func (r *Room) ApplyMove(seat rules.Seat, move string, reportedRemaining float64) (*MoveInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireActive(); err != nil {
		return nil, err
	}
	if r.pos.Turn() != seat {
		return nil, ErrNotYourTurn
	}
	if reportedRemaining < 0 {
		return nil, clock.ErrBadReport
	}
	san, err := r.pos.Apply(move)
	if err != nil {
		return nil, err
	}
	_ = r.clk.CreditMove(seat, reportedRemaining)
	r.touch()

	snap := r.clk.Snapshot()
	r.publish(Event{Room: r.code, Type: EventMoveApplied, FEN: r.pos.FEN(), Move: move, Clock: &snap})
	obslog.L().Info("room_move",
		zap.String("room", r.code),
		zap.String("seat", string(seat)),
		zap.String("san", san),
	)

	if v := r.pos.Verdict(); v.Terminal() {
		r.finish(r.terminalResult(v, seat))
	}
	return &MoveInfo{FEN: r.pos.FEN(), SAN: san, Clock: snap}, nil
}

// TimeOut accepts a self-reported flag-fall for seat and ends the game in
// the opponent's favor.
func (r *Room) TimeOut(seat rules.Seat) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireActive(); err != nil {
		return err
	}
	if !r.clk.FlagPlausible(seat) {
		return ErrImplausibleFlag
	}
	r.touch()
	r.finish(r.render("result.time", map[string]string{"Winner": seat.Opponent().Label()},
		seat.Opponent().Label()+" wins on time!"))
	obslog.L().Info("room_timeout", zap.String("room", r.code), zap.String("seat", string(seat)))
	return nil
}

// Resign ends the game immediately in the opponent's favor.
func (r *Room) Resign(seat rules.Seat) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireActive(); err != nil {
		return err
	}
	r.touch()
	r.finish(r.render("result.resignation", map[string]string{"Winner": seat.Opponent().Label()},
		seat.Opponent().Label()+" wins by resignation!"))
	obslog.L().Info("room_resign", zap.String("room", r.code), zap.String("seat", string(seat)))
	return nil
}

// OfferDraw runs the escalation rules. A barred seat's offer fails with
// ErrDrawDisabled and nothing is broadcast to the room.
func (r *Room) OfferDraw(seat rules.Seat) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireActive(); err != nil {
		return err
	}
	if r.draw.isBarred(seat) {
		return ErrDrawDisabled
	}
	act := r.draw.offer(seat)
	r.touch()

	if act.warn {
		r.publish(Event{
			Room: r.code, Type: EventDrawWarning, Only: seat,
			Notice: r.render("draw.warning", nil, "Repeated draw offers will be disabled."),
		})
	}
	if act.disable {
		r.publish(Event{
			Room: r.code, Type: EventDrawDisabled, Only: seat,
			Notice: r.render("draw.disabled", nil, "Draw offers are now disabled for you."),
		})
		obslog.L().Info("room_draw_disabled", zap.String("room", r.code), zap.String("seat", string(seat)))
		return nil
	}
	if act.forward {
		r.publish(Event{Room: r.code, Type: EventDrawOffered, Only: seat.Opponent(), Seat: seat})
	}
	return nil
}

// RespondDraw finishes the game as drawn by agreement when accepted; a
// decline changes nothing and the standing offer simply lapses.
func (r *Room) RespondDraw(accepted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireActive(); err != nil {
		return err
	}
	r.touch()
	if !accepted {
		return nil
	}
	r.finish(r.render("result.agreement", nil, "Game drawn by agreement!"))
	return nil
}

// Teardown finishes the room without broadcasting and cancels any pending
// reconnection timers. It is idempotent; the caller removes the room from
// the registry.
func (r *Room) Teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = PhaseFinished
	for _, seat := range seatOrder {
		r.cancelReconnect(seat)
	}
}

// --- internals; all require r.mu held ---

func (r *Room) requireActive() error {
	switch r.phase {
	case PhaseFinished:
		return ErrGameFinished
	case PhaseActive:
		return nil
	default:
		return ErrNotActive
	}
}

func (r *Room) unassigned(seat rules.Seat) bool {
	ss := r.seats[seat]
	return ss.occupant == "" && ss.vacatedToken == ""
}

func (r *Room) occupied(seat rules.Seat) bool { return r.seats[seat].occupant != "" }

func (r *Room) joinInfo(seat rules.Seat) *JoinInfo {
	return &JoinInfo{Seat: seat, FEN: r.pos.FEN(), Clock: r.clk.Snapshot()}
}

func (r *Room) touch() { r.lastActivity = r.wall.Now() }

func (r *Room) publish(ev Event) {
	if r.sink != nil {
		r.sink.Publish(ev)
	}
}

func (r *Room) finish(result string) {
	r.phase = PhaseFinished
	r.publish(Event{Room: r.code, Type: EventGameOver, Result: result})
}

func (r *Room) terminalResult(v rules.Verdict, mover rules.Seat) string {
	if v.Termination == rules.WhiteWins || v.Termination == rules.BlackWins {
		// Checkmate attribution: the side that just moved delivered it.
		return r.render("result.checkmate", map[string]string{"Winner": mover.Label()},
			mover.Label()+" wins by checkmate!")
	}
	key := "result." + v.Method
	return r.render(key, nil, "Game drawn!")
}

func (r *Room) render(key string, data any, fallback string) string {
	if r.messages == nil {
		return fallback
	}
	s, err := r.messages.Render(key, data)
	if err != nil {
		return fallback
	}
	return s
}

func (r *Room) startReconnectTimer(seat rules.Seat, token string) {
	r.cancelReconnect(seat)
	cancel := make(chan struct{})
	r.cancels[seat] = cancel
	timer := r.wall.NewTimer(r.reconnectWindow)
	go func() {
		select {
		case <-timer.Chan():
			r.expireSeat(seat, token)
		case <-cancel:
			if !timer.Stop() {
				select {
				case <-timer.Chan():
				default:
				}
			}
		}
	}()
}

func (r *Room) cancelReconnect(seat rules.Seat) {
	if ch, ok := r.cancels[seat]; ok {
		close(ch)
		delete(r.cancels, seat)
	}
}

func (r *Room) expireSeat(seat rules.Seat, token string) {
	r.mu.Lock()
	if r.phase == PhaseFinished || r.seats[seat].vacatedToken != token {
		r.mu.Unlock()
		return
	}
	delete(r.cancels, seat)
	r.finish(r.render("result.abandoned", map[string]string{"Seat": string(seat)},
		"Game ended - "+string(seat)+" player failed to reconnect"))
	r.mu.Unlock()

	obslog.L().Info("room_reconnect_expired", zap.String("room", r.code), zap.String("seat", string(seat)))
	if r.onTerminated != nil {
		r.onTerminated(r.code)
	}
}

// publicID derives the short, shareable identifier announced in events from
// a session token, which itself stays private to its holder.
func publicID(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}

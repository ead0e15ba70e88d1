package room

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/surajperamanu/the-real-chess-app/internal/rules"
)

type recordSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordSink) Publish(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordSink) last(t *testing.T) Event {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		t.Fatal("no events published")
	}
	return s.events[len(s.events)-1]
}

func newTestRoom(t *testing.T, fc clockwork.Clock, sink Sink, onTerminated func(string)) *Room {
	t.Helper()
	return New(Config{
		Code:            "AB12CD",
		Initial:         300,
		Increment:       5,
		ReconnectWindow: 30 * time.Second,
		Wall:            fc,
		Sink:            sink,
		OnTerminated:    onTerminated,
	})
}

func seatBoth(t *testing.T, r *Room) (white, black string) {
	t.Helper()
	white, black = "tok-white-11111111", "tok-black-22222222"
	if _, err := r.Join(white, true); err != nil {
		t.Fatalf("seat white: %v", err)
	}
	if _, err := r.Join(black, false); err != nil {
		t.Fatalf("seat black: %v", err)
	}
	return white, black
}

func TestJoinSeatsAndActivates(t *testing.T) {
	sink := &recordSink{}
	r := newTestRoom(t, clockwork.NewFakeClock(), sink, nil)

	info, err := r.Join("tok-creator-1111", true)
	if err != nil {
		t.Fatalf("creator join: %v", err)
	}
	if info.Seat != rules.SeatWhite {
		t.Fatalf("creator seat = %s, want white", info.Seat)
	}
	if r.Phase() != PhaseWaiting {
		t.Fatalf("phase = %s before second join", r.Phase())
	}

	info, err = r.Join("tok-second-2222", false)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if info.Seat != rules.SeatBlack {
		t.Fatalf("second seat = %s, want black", info.Seat)
	}
	if info.Clock.White != 300 || info.Clock.Increment != 5 {
		t.Fatalf("clock snapshot = %+v", info.Clock)
	}
	if r.Phase() != PhaseActive {
		t.Fatalf("phase = %s after both seated", r.Phase())
	}

	ev := sink.last(t)
	if ev.Type != EventGameStart {
		t.Fatalf("last event = %s, want gameStart", ev.Type)
	}
	if ev.White != "tok-crea" || ev.Black != "tok-seco" {
		t.Fatalf("public ids = %q/%q", ev.White, ev.Black)
	}

	if _, err := r.Join("tok-third-3333", false); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("third join err = %v, want ErrRoomFull", err)
	}
}

func TestJoinIdempotentForSameToken(t *testing.T) {
	r := newTestRoom(t, clockwork.NewFakeClock(), &recordSink{}, nil)
	white, _ := seatBoth(t, r)

	info, err := r.Join(white, true)
	if err != nil {
		t.Fatalf("repeat join: %v", err)
	}
	if info.Seat != rules.SeatWhite {
		t.Fatalf("repeat join seat = %s", info.Seat)
	}
}

func TestRejoinWithinWindowRestoresSeat(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sink := &recordSink{}
	r := newTestRoom(t, fc, sink, func(string) { t.Error("room terminated unexpectedly") })
	white, _ := seatBoth(t, r)

	r.Disconnect(white)
	ev := sink.last(t)
	if ev.Type != EventPlayerDisconnected || ev.Seat != rules.SeatWhite {
		t.Fatalf("after disconnect got %+v", ev)
	}

	before := len(sink.all())
	info, err := r.Join(white, false)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if info.Seat != rules.SeatWhite {
		t.Fatalf("rejoin seat = %s, want white", info.Seat)
	}
	if got := len(sink.all()); got != before {
		t.Fatalf("rejoin published %d extra events", got-before)
	}

	// The expired timer must be a no-op after the seat was reclaimed.
	fc.Advance(31 * time.Second)
	time.Sleep(10 * time.Millisecond)
	if r.Phase() != PhaseActive {
		t.Fatalf("phase = %s after stale timer fired", r.Phase())
	}
}

func TestReconnectExpiryTerminatesRoom(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sink := &recordSink{}
	terminated := make(chan string, 1)
	r := newTestRoom(t, fc, sink, func(code string) { terminated <- code })
	_, black := seatBoth(t, r)

	r.Disconnect(black)
	fc.Advance(31 * time.Second)

	select {
	case code := <-terminated:
		if code != "AB12CD" {
			t.Fatalf("terminated code = %q", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reconnection expiry never fired")
	}
	if r.Phase() != PhaseFinished {
		t.Fatalf("phase = %s after expiry", r.Phase())
	}
	ev := sink.last(t)
	if ev.Type != EventGameOver {
		t.Fatalf("last event = %s, want gameOver", ev.Type)
	}
	if ev.Result != "Game ended - black player failed to reconnect" {
		t.Fatalf("result = %q", ev.Result)
	}

	if _, err := r.Join(black, false); !errors.Is(err, ErrGameFinished) {
		t.Fatalf("join after expiry err = %v", err)
	}
}

func TestSeatReservedWhileVacated(t *testing.T) {
	fc := clockwork.NewFakeClock()
	r := newTestRoom(t, fc, &recordSink{}, nil)
	white, _ := seatBoth(t, r)

	r.Disconnect(white)
	if _, err := r.Join("tok-intruder-9999", false); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("intruder join err = %v, want ErrRoomFull", err)
	}
}

func TestApplyMoveCreditsMoverOnly(t *testing.T) {
	r := newTestRoom(t, clockwork.NewFakeClock(), &recordSink{}, nil)
	seatBoth(t, r)

	info, err := r.ApplyMove(rules.SeatWhite, "e2e4", 290)
	if err != nil {
		t.Fatalf("white move: %v", err)
	}
	if info.SAN != "e4" {
		t.Fatalf("san = %q", info.SAN)
	}
	if info.Clock.White != 295 {
		t.Fatalf("white clock = %v, want 295", info.Clock.White)
	}
	if info.Clock.Black != 300 {
		t.Fatalf("black clock = %v, want untouched 300", info.Clock.Black)
	}

	info, err = r.ApplyMove(rules.SeatBlack, "e7e5", 299.5)
	if err != nil {
		t.Fatalf("black move: %v", err)
	}
	if info.Clock.Black != 304.5 {
		t.Fatalf("black clock = %v, want 304.5", info.Clock.Black)
	}
}

func TestApplyMoveRejections(t *testing.T) {
	sink := &recordSink{}
	r := newTestRoom(t, clockwork.NewFakeClock(), sink, nil)
	seatBoth(t, r)
	eventsBefore := len(sink.all())

	if _, err := r.ApplyMove(rules.SeatBlack, "e7e5", 300); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("out-of-turn err = %v", err)
	}
	if _, err := r.ApplyMove(rules.SeatWhite, "e2e5", 300); !errors.Is(err, rules.ErrIllegalMove) {
		t.Fatalf("illegal move err = %v", err)
	}
	if _, err := r.ApplyMove(rules.SeatWhite, "e2e4", -1); err == nil {
		t.Fatal("negative report accepted")
	}
	if got := len(sink.all()); got != eventsBefore {
		t.Fatalf("rejected moves published %d events", got-eventsBefore)
	}

	// State unchanged: white still to move, legal move still works.
	if _, err := r.ApplyMove(rules.SeatWhite, "e2e4", 300); err != nil {
		t.Fatalf("move after rejections: %v", err)
	}
}

func TestMoveBeforeActivation(t *testing.T) {
	r := newTestRoom(t, clockwork.NewFakeClock(), &recordSink{}, nil)
	if _, err := r.Join("tok-only-1111", true); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := r.ApplyMove(rules.SeatWhite, "e2e4", 300); !errors.Is(err, ErrNotActive) {
		t.Fatalf("waiting-phase move err = %v", err)
	}
}

func TestCheckmateFinishesGame(t *testing.T) {
	sink := &recordSink{}
	r := newTestRoom(t, clockwork.NewFakeClock(), sink, nil)
	seatBoth(t, r)

	moves := []struct {
		seat rules.Seat
		uci  string
	}{
		{rules.SeatWhite, "f2f3"},
		{rules.SeatBlack, "e7e5"},
		{rules.SeatWhite, "g2g4"},
		{rules.SeatBlack, "d8h4"},
	}
	for _, m := range moves {
		if _, err := r.ApplyMove(m.seat, m.uci, 300); err != nil {
			t.Fatalf("move %s: %v", m.uci, err)
		}
	}

	if r.Phase() != PhaseFinished {
		t.Fatalf("phase = %s after mate", r.Phase())
	}
	ev := sink.last(t)
	if ev.Type != EventGameOver {
		t.Fatalf("last event = %s", ev.Type)
	}
	if ev.Result != "Black wins by checkmate!" {
		t.Fatalf("result = %q", ev.Result)
	}

	if _, err := r.ApplyMove(rules.SeatWhite, "a2a3", 300); !errors.Is(err, ErrGameFinished) {
		t.Fatalf("move after mate err = %v", err)
	}
}

func TestResignFinishes(t *testing.T) {
	sink := &recordSink{}
	r := newTestRoom(t, clockwork.NewFakeClock(), sink, nil)
	seatBoth(t, r)

	if err := r.Resign(rules.SeatWhite); err != nil {
		t.Fatalf("resign: %v", err)
	}
	ev := sink.last(t)
	if ev.Type != EventGameOver || ev.Result != "Black wins by resignation!" {
		t.Fatalf("after resign got %+v", ev)
	}
	if err := r.Resign(rules.SeatBlack); !errors.Is(err, ErrGameFinished) {
		t.Fatalf("double resign err = %v", err)
	}
}

func TestTimeOutFinishes(t *testing.T) {
	sink := &recordSink{}
	r := newTestRoom(t, clockwork.NewFakeClock(), sink, nil)
	seatBoth(t, r)

	if err := r.TimeOut(rules.SeatBlack); err != nil {
		t.Fatalf("timeout: %v", err)
	}
	ev := sink.last(t)
	if ev.Type != EventGameOver || ev.Result != "White wins on time!" {
		t.Fatalf("after timeout got %+v", ev)
	}
}

func TestRespondDraw(t *testing.T) {
	sink := &recordSink{}
	r := newTestRoom(t, clockwork.NewFakeClock(), sink, nil)
	seatBoth(t, r)

	if err := r.OfferDraw(rules.SeatWhite); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if err := r.RespondDraw(false); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if r.Phase() != PhaseActive {
		t.Fatalf("phase = %s after decline", r.Phase())
	}

	if err := r.RespondDraw(true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	ev := sink.last(t)
	if ev.Type != EventGameOver || ev.Result != "Game drawn by agreement!" {
		t.Fatalf("after accept got %+v", ev)
	}
}

func TestDrawOfferEscalation(t *testing.T) {
	sink := &recordSink{}
	r := newTestRoom(t, clockwork.NewFakeClock(), sink, nil)
	seatBoth(t, r)
	base := len(sink.all())

	// First offer forwards to the opponent only.
	if err := r.OfferDraw(rules.SeatWhite); err != nil {
		t.Fatalf("offer 1: %v", err)
	}
	evs := sink.all()[base:]
	if len(evs) != 1 || evs[0].Type != EventDrawOffered || evs[0].Only != rules.SeatBlack {
		t.Fatalf("after offer 1 got %+v", evs)
	}

	// Second consecutive offer warns the offerer and still forwards.
	if err := r.OfferDraw(rules.SeatWhite); err != nil {
		t.Fatalf("offer 2: %v", err)
	}
	evs = sink.all()[base+1:]
	if len(evs) != 2 || evs[0].Type != EventDrawWarning || evs[0].Only != rules.SeatWhite {
		t.Fatalf("after offer 2 got %+v", evs)
	}
	if evs[1].Type != EventDrawOffered {
		t.Fatalf("offer 2 not forwarded: %+v", evs)
	}

	// Third consecutive offer bars the seat and is not forwarded.
	if err := r.OfferDraw(rules.SeatWhite); err != nil {
		t.Fatalf("offer 3: %v", err)
	}
	evs = sink.all()[base+3:]
	if len(evs) != 1 || evs[0].Type != EventDrawDisabled || evs[0].Only != rules.SeatWhite {
		t.Fatalf("after offer 3 got %+v", evs)
	}

	// Barred for the rest of the game, silently for the opponent.
	before := len(sink.all())
	if err := r.OfferDraw(rules.SeatWhite); !errors.Is(err, ErrDrawDisabled) {
		t.Fatalf("barred offer err = %v", err)
	}
	if got := len(sink.all()); got != before {
		t.Fatalf("barred offer published %d events", got-before)
	}

	// The opponent can still offer.
	if err := r.OfferDraw(rules.SeatBlack); err != nil {
		t.Fatalf("opponent offer: %v", err)
	}
}

func TestDrawCounterResetsWhenOffererChanges(t *testing.T) {
	r := newTestRoom(t, clockwork.NewFakeClock(), &recordSink{}, nil)
	seatBoth(t, r)

	for i, seat := range []rules.Seat{rules.SeatWhite, rules.SeatBlack, rules.SeatWhite, rules.SeatBlack} {
		if err := r.OfferDraw(seat); err != nil {
			t.Fatalf("alternating offer %d: %v", i, err)
		}
	}
	// White's count reset each time black offered: a fifth white offer is
	// only white's second consecutive one, so it must still be allowed.
	if err := r.OfferDraw(rules.SeatWhite); err != nil {
		t.Fatalf("white offer after alternation: %v", err)
	}
}

func TestTeardownIdempotentAndSilent(t *testing.T) {
	fc := clockwork.NewFakeClock()
	sink := &recordSink{}
	r := newTestRoom(t, fc, sink, func(string) { t.Error("teardown must not invoke onTerminated") })
	white, _ := seatBoth(t, r)
	r.Disconnect(white)
	before := len(sink.all())

	r.Teardown()
	r.Teardown()
	if got := len(sink.all()); got != before {
		t.Fatalf("teardown published %d events", got-before)
	}
	if r.Phase() != PhaseFinished {
		t.Fatalf("phase = %s after teardown", r.Phase())
	}

	// The pending reconnect timer was cancelled with the room.
	fc.Advance(31 * time.Second)
	time.Sleep(10 * time.Millisecond)
}

func TestLastActivityAdvances(t *testing.T) {
	fc := clockwork.NewFakeClock()
	r := newTestRoom(t, fc, &recordSink{}, nil)
	seatBoth(t, r)
	start := r.LastActivity()

	fc.Advance(2 * time.Minute)
	if _, err := r.ApplyMove(rules.SeatWhite, "e2e4", 300); err != nil {
		t.Fatalf("move: %v", err)
	}
	if !r.LastActivity().After(start) {
		t.Fatal("move did not refresh last activity")
	}
}

// Package gateway is the WebSocket edge: it accepts connections, decodes
// client envelopes, validates payloads and routes them to room operations,
// and fans room events back out through the hub.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/surajperamanu/the-real-chess-app/internal/clock"
	"github.com/surajperamanu/the-real-chess-app/internal/obslog"
	"github.com/surajperamanu/the-real-chess-app/internal/registry"
	"github.com/surajperamanu/the-real-chess-app/internal/room"
	"github.com/surajperamanu/the-real-chess-app/internal/rules"
	"github.com/surajperamanu/the-real-chess-app/internal/session"
	"github.com/surajperamanu/the-real-chess-app/pkg/wire"
)

const (
	egressBuffer = 32
	writeTimeout = 5 * time.Second
)

type Gateway struct {
	rooms    *registry.Registry
	sessions *session.Manager
	hub      *Hub
	validate *validator.Validate

	allowedOrigins []string
}

func New(rooms *registry.Registry, sessions *session.Manager, hub *Hub, allowedOrigins []string) *Gateway {
	return &Gateway{
		rooms:          rooms,
		sessions:       sessions,
		hub:            hub,
		validate:       validator.New(),
		allowedOrigins: allowedOrigins,
	}
}

// Handler serves the WebSocket endpoint. Each connection gets an egress
// writer goroutine; the request goroutine runs the read loop.
func (g *Gateway) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		opts := &websocket.AcceptOptions{OriginPatterns: g.allowedOrigins}
		conn, err := websocket.Accept(w, r, opts)
		if err != nil {
			obslog.L().Warn("gateway_accept_failed", zap.Error(err))
			return
		}

		connID := uuid.NewString()
		ctx, cancel := context.WithCancel(r.Context())
		c := newClient(connID, egressBuffer, func() {
			_ = conn.Close(websocket.StatusPolicyViolation, "client too slow")
			cancel()
		})

		go g.writeLoop(ctx, conn, c)
		obslog.L().Info("gateway_connected", zap.String("conn", connID))

		g.readLoop(ctx, conn, c)

		cancel()
		g.closeSession(connID)
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
		obslog.L().Info("gateway_disconnected", zap.String("conn", connID))
	})
}

func (g *Gateway) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.egress:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, msg)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	for {
		var msg wire.ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return
		}
		g.dispatch(c, msg)
	}
}

// closeSession vacates the seat on transport loss, opening the room's
// reconnection window.
func (g *Gateway) closeSession(connID string) {
	if b, err := g.sessions.Resolve(connID); err == nil {
		g.hub.Unregister(b.RoomID, connID)
	}
	g.sessions.Disconnect(connID)
}

func (g *Gateway) dispatch(c *client, msg wire.ClientMessage) {
	switch msg.Type {
	case wire.TypeCreateRoom:
		g.handleCreateRoom(c, msg.Payload)
	case wire.TypeJoinRoom:
		g.handleJoinRoom(c, msg.Payload)
	case wire.TypeMove:
		g.handleMove(c, msg.Payload)
	case wire.TypeResign:
		g.handleResign(c)
	case wire.TypeOfferDraw:
		g.handleOfferDraw(c)
	case wire.TypeDrawResponse:
		g.handleDrawResponse(c, msg.Payload)
	case wire.TypeTimeOut:
		g.handleTimeOut(c)
	case wire.TypeLeaveRoom:
		g.handleLeaveRoom(c)
	default:
		g.sendError(c, errors.New("unknown message type: "+msg.Type))
	}
}

func (g *Gateway) handleCreateRoom(c *client, payload json.RawMessage) {
	var req wire.CreateRoomRequest
	if !g.decode(c, payload, &req) {
		return
	}
	r, err := g.rooms.Create(req.Initial, req.Increment)
	if err != nil {
		g.sendError(c, err)
		return
	}
	c.send(wire.ServerMessage{Type: wire.TypeRoomCreated, Payload: wire.RoomCreatedPayload{RoomID: r.Code()}})
}

func (g *Gateway) handleJoinRoom(c *client, payload json.RawMessage) {
	var req wire.JoinRoomRequest
	if !g.decode(c, payload, &req) {
		return
	}

	// Register before joining so the activation broadcast reaches this
	// connection too.
	g.hub.Register(req.RoomID, c)
	res, err := g.sessions.Join(c.id, req.RoomID, req.SessionToken, req.IsCreator)
	if err != nil {
		g.hub.Unregister(req.RoomID, c.id)
		g.sendError(c, err)
		return
	}
	g.hub.BindSeat(req.RoomID, res.Seat, c.id)

	c.send(wire.ServerMessage{Type: wire.TypeRoomJoined, Payload: wire.RoomJoinedPayload{
		RoomID:       res.RoomID,
		Seat:         string(res.Seat),
		SessionToken: res.Token,
		FEN:          res.FEN,
		Clock:        clockToWire(&res.Clock),
	}})
}

func (g *Gateway) handleMove(c *client, payload json.RawMessage) {
	var req wire.MoveRequest
	if !g.decode(c, payload, &req) {
		return
	}
	b, r, err := g.boundRoom(c.id)
	if err != nil {
		g.sendError(c, err)
		return
	}
	if _, err := r.ApplyMove(b.Seat, req.Move, req.RemainingReported); err != nil {
		g.sendError(c, err)
	}
}

func (g *Gateway) handleResign(c *client) {
	b, r, err := g.boundRoom(c.id)
	if err != nil {
		g.sendError(c, err)
		return
	}
	if err := r.Resign(b.Seat); err != nil {
		g.sendError(c, err)
	}
}

func (g *Gateway) handleOfferDraw(c *client) {
	b, r, err := g.boundRoom(c.id)
	if err != nil {
		g.sendError(c, err)
		return
	}
	if err := r.OfferDraw(b.Seat); err != nil {
		g.sendError(c, err)
	}
}

func (g *Gateway) handleDrawResponse(c *client, payload json.RawMessage) {
	var req wire.DrawResponseRequest
	if !g.decode(c, payload, &req) {
		return
	}
	_, r, err := g.boundRoom(c.id)
	if err != nil {
		g.sendError(c, err)
		return
	}
	if err := r.RespondDraw(req.Accepted); err != nil {
		g.sendError(c, err)
	}
}

func (g *Gateway) handleTimeOut(c *client) {
	b, r, err := g.boundRoom(c.id)
	if err != nil {
		g.sendError(c, err)
		return
	}
	if err := r.TimeOut(b.Seat); err != nil {
		g.sendError(c, err)
	}
}

func (g *Gateway) handleLeaveRoom(c *client) {
	b, err := g.sessions.Resolve(c.id)
	if err != nil {
		g.sendError(c, err)
		return
	}
	g.sessions.Leave(c.id)
	g.hub.DropRoom(b.RoomID)
}

func (g *Gateway) boundRoom(connID string) (session.Binding, *room.Room, error) {
	b, err := g.sessions.Resolve(connID)
	if err != nil {
		return session.Binding{}, nil, err
	}
	r, err := g.rooms.Get(b.RoomID)
	if err != nil {
		return session.Binding{}, nil, err
	}
	return b, r, nil
}

// decode unmarshals and validates a payload, reporting failures to the
// caller only.
func (g *Gateway) decode(c *client, payload json.RawMessage, into any) bool {
	if len(payload) == 0 {
		g.sendError(c, errors.New("missing payload"))
		return false
	}
	if err := json.Unmarshal(payload, into); err != nil {
		g.sendError(c, errors.New("malformed payload"))
		return false
	}
	if err := g.validate.Struct(into); err != nil {
		g.sendError(c, err)
		return false
	}
	return true
}

func (g *Gateway) sendError(c *client, err error) {
	c.send(wire.ServerMessage{Type: wire.TypeError, Payload: wire.ErrorPayload{
		Code:    errCode(err),
		Message: err.Error(),
	}})
}

func errCode(err error) string {
	switch {
	case errors.Is(err, registry.ErrRoomNotFound):
		return "roomNotFound"
	case errors.Is(err, registry.ErrTooManyRooms):
		return "tooManyRooms"
	case errors.Is(err, room.ErrRoomFull):
		return "roomFull"
	case errors.Is(err, room.ErrNotActive):
		return "notActive"
	case errors.Is(err, room.ErrGameFinished):
		return "gameFinished"
	case errors.Is(err, room.ErrNotYourTurn):
		return "notYourTurn"
	case errors.Is(err, room.ErrDrawDisabled):
		return "drawDisabled"
	case errors.Is(err, room.ErrImplausibleFlag):
		return "badTimeout"
	case errors.Is(err, rules.ErrIllegalMove):
		return "illegalMove"
	case errors.Is(err, clock.ErrBadReport):
		return "badClockReport"
	case errors.Is(err, session.ErrNoSession):
		return "noSession"
	default:
		var verr validator.ValidationErrors
		if errors.As(err, &verr) {
			return "badRequest"
		}
		return "internal"
	}
}

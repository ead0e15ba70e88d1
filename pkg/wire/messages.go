// Package wire defines the JSON messages exchanged with clients. The
// transport frames one envelope per message in both directions.
package wire

import "encoding/json"

// ClientMessage is the inbound envelope. Payload is decoded per Type into one
// of the request structs below.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage is the outbound envelope.
type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Inbound message types.
const (
	TypeCreateRoom   = "createRoom"
	TypeJoinRoom     = "joinRoom"
	TypeMove         = "move"
	TypeResign       = "resign"
	TypeOfferDraw    = "offerDraw"
	TypeDrawResponse = "drawResponse"
	TypeTimeOut      = "timeOut"
	TypeLeaveRoom    = "leaveRoom"
)

// Outbound message types.
const (
	TypeRoomCreated        = "roomCreated"
	TypeRoomJoined         = "roomJoined"
	TypeGameStart          = "gameStart"
	TypeMoveApplied        = "moveApplied"
	TypeGameOver           = "gameOver"
	TypePlayerDisconnected = "playerDisconnected"
	TypeDrawOffered        = "drawOffered"
	TypeDrawWarning        = "drawWarning"
	TypeDrawDisabled       = "drawDisabled"
	TypeError              = "error"
)

// Requests. Times are seconds, matching the clock payloads.

type CreateRoomRequest struct {
	Initial   float64 `json:"initial" validate:"required,gt=0,lte=86400"`
	Increment float64 `json:"increment" validate:"gte=0,lte=3600"`
}

type JoinRoomRequest struct {
	RoomID       string `json:"roomId" validate:"required,len=6,alphanum"`
	IsCreator    bool   `json:"isCreator"`
	SessionToken string `json:"sessionToken" validate:"omitempty,uuid4"`
}

type MoveRequest struct {
	RoomID            string  `json:"roomId" validate:"required,len=6,alphanum"`
	Move              string  `json:"move" validate:"required,min=2,max=16"`
	RemainingReported float64 `json:"remainingReported" validate:"gte=0"`
}

type SeatRequest struct {
	RoomID string `json:"roomId" validate:"required,len=6,alphanum"`
	Seat   string `json:"seat" validate:"required,oneof=white black"`
}

type DrawResponseRequest struct {
	RoomID   string `json:"roomId" validate:"required,len=6,alphanum"`
	Accepted bool   `json:"accepted"`
}

type LeaveRoomRequest struct {
	RoomID string `json:"roomId" validate:"required,len=6,alphanum"`
}

// Payloads of server messages.

type ClockPayload struct {
	White     float64 `json:"white"`
	Black     float64 `json:"black"`
	Initial   float64 `json:"initial"`
	Increment float64 `json:"increment"`
}

type RoomCreatedPayload struct {
	RoomID string `json:"roomId"`
}

type RoomJoinedPayload struct {
	RoomID       string       `json:"roomId"`
	Seat         string       `json:"seat"`
	SessionToken string       `json:"sessionToken"`
	FEN          string       `json:"fen"`
	Clock        ClockPayload `json:"clock"`
}

type GameStartPayload struct {
	RoomID string       `json:"roomId"`
	White  string       `json:"white"`
	Black  string       `json:"black"`
	Clock  ClockPayload `json:"clock"`
}

type MoveAppliedPayload struct {
	RoomID string       `json:"roomId"`
	FEN    string       `json:"fen"`
	Move   string       `json:"move"`
	Clock  ClockPayload `json:"clock"`
}

type GameOverPayload struct {
	RoomID string `json:"roomId"`
	Result string `json:"result"`
}

type PlayerDisconnectedPayload struct {
	RoomID string `json:"roomId"`
	Seat   string `json:"seat"`
}

type DrawOfferedPayload struct {
	RoomID string `json:"roomId"`
	From   string `json:"from"`
}

type NoticePayload struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

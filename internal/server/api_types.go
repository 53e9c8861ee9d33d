package server

import (
	"time"

	"fish-server/internal/fish"
)

// ============================================================================
// ERROR RESPONSES
// ============================================================================
// tygo:generate
type ErrorMessage struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ============================================================================
// IDENTITY (REGISTER_USER)
// ============================================================================
// tygo:generate
type RegisterUserRequest struct {
	Token string `json:"token,omitempty"`
	Name  string `json:"name"`
}

// tygo:generate
type UserRegisteredResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// ============================================================================
// LOBBY (CREATE_ROOM, JOIN_ROOM, LEAVE_ROOM)
// ============================================================================
// tygo:generate
type CreateRoomRequest struct {
	Name string `json:"name"`
}

// tygo:generate
type JoinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	Name     string `json:"name"`
}

// RoomCommand is the payload of commands that need nothing but the room.
// The code is optional; when present it must match the caller's room.
// tygo:generate
type RoomCommand struct {
	RoomCode string `json:"roomCode,omitempty"`
}

// tygo:generate
type LeaveRoomRequest struct {
	RoomCode string `json:"roomCode,omitempty"`
	Close    bool   `json:"close"`
}

// tygo:generate
type RoomJoinedResponse struct {
	RoomCode string        `json:"roomCode"`
	PlayerID fish.PlayerID `json:"playerId"`
	Room     RoomSnapshot  `json:"room"`
}

// RoomEvent is the payload of events whose only content is the new room.
// tygo:generate
type RoomEvent struct {
	Room RoomSnapshot `json:"room"`
}

// tygo:generate
type PlayerNotification struct {
	PlayerID fish.PlayerID `json:"playerId"`
	Name     string        `json:"name"`
	Room     RoomSnapshot  `json:"room"`
}

// tygo:generate
type RoomClosedNotification struct {
	RoomCode string `json:"roomCode"`
	Message  string `json:"message"`
}

// ============================================================================
// TEAM SETUP (SWAP_REQUEST, SWAP_RESPONSE)
// ============================================================================
// tygo:generate
type SwapRequestCommand struct {
	RoomCode string        `json:"roomCode,omitempty"`
	TargetID fish.PlayerID `json:"targetId"`
}

// tygo:generate
type SwapResponseCommand struct {
	RoomCode  string `json:"roomCode,omitempty"`
	RequestID int    `json:"requestId"`
	Accept    bool   `json:"accept"`
}

// tygo:generate
type SwapNotification struct {
	Request fish.SwapRequest `json:"request"`
	Room    RoomSnapshot     `json:"room"`
}

// ============================================================================
// PLAY (ASK_CARD, MAKE_CLAIM, TOGGLE_PAUSE, DECLARE_WINNER)
// ============================================================================
// tygo:generate
type AskCardRequest struct {
	RoomCode string        `json:"roomCode,omitempty"`
	TargetID fish.PlayerID `json:"targetId"`
	Card     fish.Card     `json:"card"`
}

// tygo:generate
type MakeClaimRequest struct {
	RoomCode     string            `json:"roomCode,omitempty"`
	HalfSuit     fish.HalfSuit     `json:"halfSuit"`
	TargetTeam   fish.Team         `json:"targetTeam"`
	Distribution fish.Distribution `json:"distribution"`
}

// tygo:generate
type DeclareWinnerRequest struct {
	RoomCode string    `json:"roomCode,omitempty"`
	Team     fish.Team `json:"team"`
}

// GameStateUpdate carries the full room after any change to a running game.
// Ask or Claim is set when the change was a question or a claim.
// tygo:generate
type GameStateUpdate struct {
	Room  RoomSnapshot       `json:"room"`
	Ask   *fish.AskOutcome   `json:"ask,omitempty"`
	Claim *fish.ClaimOutcome `json:"claim,omitempty"`
}

// ============================================================================
// DISCONNECTS (PLAYER_DISCONNECTED, CARDS_REDISTRIBUTED, FORCE_REDISTRIBUTE)
// ============================================================================
// tygo:generate
type ForceRedistributeRequest struct {
	RoomCode string        `json:"roomCode,omitempty"`
	PlayerID fish.PlayerID `json:"playerId"`
}

// tygo:generate
type PlayerDisconnectedNotification struct {
	PlayerID      fish.PlayerID `json:"playerId"`
	Name          string        `json:"name"`
	GracePeriodMs int64         `json:"gracePeriodMs"`
	ReconnectBy   time.Time     `json:"reconnectBy"`
	Room          RoomSnapshot  `json:"room"`
}

// tygo:generate
type RedistributionNotification struct {
	fish.Redistribution
	Name string       `json:"name"`
	Room RoomSnapshot `json:"room"`
}

// ============================================================================
// INVITES (INVITE_TO_GAME, INVITE_RESPONSE)
// ============================================================================
// tygo:generate
type InviteToGameRequest struct {
	TargetUserID string `json:"targetUserId"`
}

// tygo:generate
type InviteResponseRequest struct {
	RoomCode   string `json:"roomCode"`
	FromUserID string `json:"fromUserId"`
	Accept     bool   `json:"accept"`
}

// tygo:generate
type GameInviteNotification struct {
	RoomCode   string `json:"roomCode"`
	FromUserID string `json:"fromUserId"`
	FromName   string `json:"fromName"`
}

// tygo:generate
type InviteResult struct {
	TargetUserID string `json:"targetUserId"`
	RoomCode     string `json:"roomCode"`
	Message      string `json:"message,omitempty"`
}

// tygo:generate
type InviteAnswerNotification struct {
	RoomCode string `json:"roomCode"`
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Accepted bool   `json:"accepted"`
}

// ============================================================================
// CONNECTION NOTICES
// ============================================================================
// tygo:generate
type NoticeMessage struct {
	Message string `json:"message"`
}
